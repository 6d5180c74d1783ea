package wire

import "google.golang.org/protobuf/encoding/protowire"

// ServingStatus is the health probe result.
type ServingStatus int32

const (
	ServingStatusUnknown    ServingStatus = 0
	ServingStatusServing    ServingStatus = 1
	ServingStatusNotServing ServingStatus = 2
)

// HealthCheckRequest names the service being probed; empty means the whole
// endpoint.
type HealthCheckRequest struct {
	Service string
}

func (m *HealthCheckRequest) Marshal() ([]byte, error) {
	var b []byte
	if m.Service != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.Service)
	}
	return b, nil
}

func (m *HealthCheckRequest) Unmarshal(data []byte) error {
	*m = HealthCheckRequest{}
	return unmarshalFields(data, map[protowire.Number]fieldFn{
		1: stringField(&m.Service),
	})
}

// HealthCheckResponse reports the probe result.
type HealthCheckResponse struct {
	Status ServingStatus
}

func (m *HealthCheckResponse) Marshal() ([]byte, error) {
	var b []byte
	if m.Status != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Status))
	}
	return b, nil
}

func (m *HealthCheckResponse) Unmarshal(data []byte) error {
	*m = HealthCheckResponse{}
	return unmarshalFields(data, map[protowire.Number]fieldFn{
		1: func(b []byte, _ protowire.Type) (int, error) {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			m.Status = ServingStatus(v)
			return n, nil
		},
	})
}
