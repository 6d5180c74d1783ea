package wire

import "google.golang.org/protobuf/encoding/protowire"

// BytesMessage is one payload of the outer Control.Session stream: an opaque
// slice of the inner HTTP/2 byte stream.
type BytesMessage struct {
	Data []byte
}

func (m *BytesMessage) Marshal() ([]byte, error) {
	var b []byte
	if len(m.Data) > 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Data)
	}
	return b, nil
}

func (m *BytesMessage) Unmarshal(data []byte) error {
	*m = BytesMessage{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Data = append([]byte(nil), v...)
			data = data[n:]
			continue
		}
		var err error
		if data, err = skipField(data, num, typ); err != nil {
			return err
		}
	}
	return nil
}
