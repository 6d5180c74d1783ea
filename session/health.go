package session

import (
	"context"

	"github.com/gantry-build/gantry/wire"
)

// healthCheckPath is the liveness probe the daemon issues before making any
// other inner call.
const healthCheckPath = "/grpc.health.v1.Health/Check"

// registerHealth routes the probe on every session. The answer is a fixed
// "serving"; a session that can answer at all is serving.
func registerHealth(m *Mux) {
	m.HandleUnary(healthCheckPath, func(_ context.Context, payload []byte) (wire.Message, error) {
		var req wire.HealthCheckRequest
		if err := req.Unmarshal(payload); err != nil {
			return nil, err
		}
		return &wire.HealthCheckResponse{Status: wire.ServingStatusServing}, nil
	})
}
