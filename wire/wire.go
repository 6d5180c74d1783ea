// Package wire contains the message types exchanged with the build daemon,
// hand-encoded with the protobuf wire format. The schemas are fixed by the
// daemon; field numbers here must not change.
package wire

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every wire type in this package.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal(data []byte) error
}

// Codec is a grpc codec for Message values. It reports its name as "proto"
// so that calls made with it keep the plain application/grpc content type
// the daemon expects.
type Codec struct{}

// Name implements grpc encoding.Codec.
func (Codec) Name() string { return "proto" }

// Marshal implements grpc encoding.Codec.
func (Codec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("wire: cannot marshal %T", v)
	}
	return m.Marshal()
}

// Unmarshal implements grpc encoding.Codec.
func (Codec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("wire: cannot unmarshal into %T", v)
	}
	return m.Unmarshal(data)
}

func appendStringMap(b []byte, num protowire.Number, m map[string]string) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, 2, protowire.BytesType)
		entry = protowire.AppendString(entry, m[k])
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

func consumeStringMapEntry(b []byte, m map[string]string) error {
	var key, val string
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			key, b = v, b[n:]
		case 2:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			val, b = v, b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	m[key] = val
	return nil
}

func appendBytesMap(b []byte, num protowire.Number, m map[string][]byte) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, 2, protowire.BytesType)
		entry = protowire.AppendBytes(entry, m[k])
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

func consumeBytesMapEntry(b []byte, m map[string][]byte) error {
	var key string
	var val []byte
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			key, b = v, b[n:]
		case 2:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			val, b = append([]byte(nil), v...), b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	m[key] = val
	return nil
}

// skipField discards a single field value of unknown number.
func skipField(b []byte, num protowire.Number, typ protowire.Type) ([]byte, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	return b[n:], nil
}

// fieldFn consumes one field value and returns the number of bytes used.
type fieldFn func(b []byte, typ protowire.Type) (int, error)

// unmarshalFields drives a decode loop over data, dispatching known field
// numbers to fns and skipping the rest.
func unmarshalFields(data []byte, fns map[protowire.Number]fieldFn) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		fn, ok := fns[num]
		if !ok {
			var err error
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
			continue
		}
		n, err := fn(data, typ)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func stringField(dst *string) fieldFn {
	return func(b []byte, _ protowire.Type) (int, error) {
		v, n := protowire.ConsumeString(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		*dst = v
		return n, nil
	}
}

func bytesField(dst *[]byte) fieldFn {
	return func(b []byte, _ protowire.Type) (int, error) {
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		*dst = append([]byte(nil), v...)
		return n, nil
	}
}

func int64Field(dst *int64) fieldFn {
	return func(b []byte, _ protowire.Type) (int, error) {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		*dst = int64(v)
		return n, nil
	}
}

func boolField(dst *bool) fieldFn {
	return func(b []byte, _ protowire.Type) (int, error) {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		*dst = v != 0
		return n, nil
	}
}
