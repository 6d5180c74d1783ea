// Package gantry is a client for BuildKit-compatible container-image build
// daemons. It drives builds over the daemon's gRPC control API and hosts the
// per-build session the daemon calls back into: a gRPC server tunneled over
// the bidirectional Session stream, serving file synchronization, registry
// credentials, build secrets and health probes.
//
// The daemon is the gRPC server for Control.Session but the gRPC client for
// everything inside the tunnel, so this package runs an HTTP/2 server
// endpoint on its side of the stream even though at the process level it is
// a client of the daemon.
//
// Typical usage:
//
//	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
//	if err != nil {
//	    return err
//	}
//	client := gantry.NewClient(conn)
//	result, err := client.Build(ctx, gantry.BuildRequest{
//	    ContextDir: ".",
//	    Tags:       []string{"registry.example.com/app:latest"},
//	    Push:       true,
//	})
package gantry
