package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// PacketType discriminates the five packet kinds of the file-sync protocol.
type PacketType int32

const (
	PacketStat PacketType = 0
	PacketReq  PacketType = 1
	PacketData PacketType = 2
	PacketFin  PacketType = 3
	PacketErr  PacketType = 4
)

func (t PacketType) String() string {
	switch t {
	case PacketStat:
		return "STAT"
	case PacketReq:
		return "REQ"
	case PacketData:
		return "DATA"
	case PacketFin:
		return "FIN"
	case PacketErr:
		return "ERR"
	}
	return fmt.Sprintf("PacketType(%d)", int32(t))
}

// Packet is the streaming payload of FileSync.DiffCopy. A STAT packet with a
// nil Stat is the listing terminator.
type Packet struct {
	Type PacketType
	Stat *Stat
	ID   uint32
	Data []byte
}

func (p *Packet) Marshal() ([]byte, error) {
	var b []byte
	if p.Type != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.Type))
	}
	if p.Stat != nil {
		sb, err := p.Stat.Marshal()
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, sb)
	}
	if p.ID != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.ID))
	}
	if len(p.Data) > 0 {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Data)
	}
	return b, nil
}

func (p *Packet) Unmarshal(data []byte) error {
	*p = Packet{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.Type = PacketType(v)
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.Stat = &Stat{}
			if err := p.Stat.Unmarshal(v); err != nil {
				return err
			}
			data = data[n:]
		case 3:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.ID = uint32(v)
			data = data[n:]
		case 4:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.Data = append([]byte(nil), v...)
			data = data[n:]
		default:
			var err error
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stat describes one entry of the synced directory tree. Path is relative to
// the walk root, forward-slash joined, with no leading slash. Mode carries
// the POSIX file-type bits.
type Stat struct {
	Path     string
	Mode     uint32
	UID      uint32
	GID      uint32
	Size     int64
	ModTime  int64 // nanoseconds
	Linkname string
	Devmajor uint32
	Devminor uint32
	Xattrs   map[string][]byte
}

func (s *Stat) Marshal() ([]byte, error) {
	var b []byte
	if s.Path != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, s.Path)
	}
	if s.Mode != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.Mode))
	}
	if s.UID != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.UID))
	}
	if s.GID != 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.GID))
	}
	if s.Size != 0 {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.Size))
	}
	if s.ModTime != 0 {
		b = protowire.AppendTag(b, 6, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.ModTime))
	}
	if s.Linkname != "" {
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendString(b, s.Linkname)
	}
	if s.Devmajor != 0 {
		b = protowire.AppendTag(b, 8, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.Devmajor))
	}
	if s.Devminor != 0 {
		b = protowire.AppendTag(b, 9, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.Devminor))
	}
	if len(s.Xattrs) > 0 {
		b = appendBytesMap(b, 10, s.Xattrs)
	}
	return b, nil
}

func (s *Stat) Unmarshal(data []byte) error {
	*s = Stat{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			s.Path, data = v, data[n:]
		case 2, 3, 4, 5, 6, 8, 9:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			switch num {
			case 2:
				s.Mode = uint32(v)
			case 3:
				s.UID = uint32(v)
			case 4:
				s.GID = uint32(v)
			case 5:
				s.Size = int64(v)
			case 6:
				s.ModTime = int64(v)
			case 8:
				s.Devmajor = uint32(v)
			case 9:
				s.Devminor = uint32(v)
			}
			data = data[n:]
		case 7:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			s.Linkname, data = v, data[n:]
		case 10:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if s.Xattrs == nil {
				s.Xattrs = map[string][]byte{}
			}
			if err := consumeBytesMapEntry(v, s.Xattrs); err != nil {
				return err
			}
			data = data[n:]
		default:
			var err error
			if data, err = skipField(data, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}
