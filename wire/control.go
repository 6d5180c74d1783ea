package wire

import "google.golang.org/protobuf/encoding/protowire"

// SolveRequest starts a build on the daemon. Definition, frontend inputs and
// source policy are never set by this client and are not modeled; the daemon
// treats absent fields as empty.
type SolveRequest struct {
	Ref                     string
	ExporterDeprecated      string
	ExporterAttrsDeprecated map[string]string
	Session                 string
	Frontend                string
	FrontendAttrs           map[string]string
	Cache                   *CacheOptions
	Entitlements            []string
	Internal                bool
	Exporters               []Exporter
}

func (m *SolveRequest) Marshal() ([]byte, error) {
	var b []byte
	if m.Ref != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.Ref)
	}
	if m.ExporterDeprecated != "" {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, m.ExporterDeprecated)
	}
	if len(m.ExporterAttrsDeprecated) > 0 {
		b = appendStringMap(b, 4, m.ExporterAttrsDeprecated)
	}
	if m.Session != "" {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendString(b, m.Session)
	}
	if m.Frontend != "" {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendString(b, m.Frontend)
	}
	if len(m.FrontendAttrs) > 0 {
		b = appendStringMap(b, 7, m.FrontendAttrs)
	}
	if m.Cache != nil {
		cb, err := m.Cache.Marshal()
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, 8, protowire.BytesType)
		b = protowire.AppendBytes(b, cb)
	}
	for _, e := range m.Entitlements {
		b = protowire.AppendTag(b, 9, protowire.BytesType)
		b = protowire.AppendString(b, e)
	}
	if m.Internal {
		b = protowire.AppendTag(b, 11, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	for i := range m.Exporters {
		eb, err := m.Exporters[i].Marshal()
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, 13, protowire.BytesType)
		b = protowire.AppendBytes(b, eb)
	}
	return b, nil
}

func (m *SolveRequest) Unmarshal(data []byte) error {
	*m = SolveRequest{}
	return unmarshalFields(data, map[protowire.Number]fieldFn{
		1: stringField(&m.Ref),
		3: stringField(&m.ExporterDeprecated),
		4: func(b []byte, _ protowire.Type) (int, error) {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			if m.ExporterAttrsDeprecated == nil {
				m.ExporterAttrsDeprecated = map[string]string{}
			}
			return n, consumeStringMapEntry(v, m.ExporterAttrsDeprecated)
		},
		5: stringField(&m.Session),
		6: stringField(&m.Frontend),
		7: func(b []byte, _ protowire.Type) (int, error) {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			if m.FrontendAttrs == nil {
				m.FrontendAttrs = map[string]string{}
			}
			return n, consumeStringMapEntry(v, m.FrontendAttrs)
		},
		8: func(b []byte, _ protowire.Type) (int, error) {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			m.Cache = &CacheOptions{}
			return n, m.Cache.Unmarshal(v)
		},
		9: func(b []byte, _ protowire.Type) (int, error) {
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			m.Entitlements = append(m.Entitlements, v)
			return n, nil
		},
		11: boolField(&m.Internal),
		13: func(b []byte, _ protowire.Type) (int, error) {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			var e Exporter
			if err := e.Unmarshal(v); err != nil {
				return 0, err
			}
			m.Exporters = append(m.Exporters, e)
			return n, nil
		},
	})
}

// SolveResponse reports exporter results keyed by attribute name.
type SolveResponse struct {
	ExporterResponse map[string]string
}

func (m *SolveResponse) Marshal() ([]byte, error) {
	var b []byte
	if len(m.ExporterResponse) > 0 {
		b = appendStringMap(b, 1, m.ExporterResponse)
	}
	return b, nil
}

func (m *SolveResponse) Unmarshal(data []byte) error {
	*m = SolveResponse{}
	return unmarshalFields(data, map[protowire.Number]fieldFn{
		1: func(b []byte, _ protowire.Type) (int, error) {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			if m.ExporterResponse == nil {
				m.ExporterResponse = map[string]string{}
			}
			return n, consumeStringMapEntry(v, m.ExporterResponse)
		},
	})
}

// CacheOptions lists cache import and export directives.
type CacheOptions struct {
	Exports []CacheOptionsEntry
	Imports []CacheOptionsEntry
}

func (m *CacheOptions) Marshal() ([]byte, error) {
	var b []byte
	for i := range m.Exports {
		eb, err := m.Exports[i].Marshal()
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, eb)
	}
	for i := range m.Imports {
		ib, err := m.Imports[i].Marshal()
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendBytes(b, ib)
	}
	return b, nil
}

func (m *CacheOptions) Unmarshal(data []byte) error {
	*m = CacheOptions{}
	return unmarshalFields(data, map[protowire.Number]fieldFn{
		4: func(b []byte, _ protowire.Type) (int, error) {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			var e CacheOptionsEntry
			if err := e.Unmarshal(v); err != nil {
				return 0, err
			}
			m.Exports = append(m.Exports, e)
			return n, nil
		},
		5: func(b []byte, _ protowire.Type) (int, error) {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			var e CacheOptionsEntry
			if err := e.Unmarshal(v); err != nil {
				return 0, err
			}
			m.Imports = append(m.Imports, e)
			return n, nil
		},
	})
}

// CacheOptionsEntry is one cache source or destination.
type CacheOptionsEntry struct {
	Type  string
	Attrs map[string]string
}

func (m *CacheOptionsEntry) Marshal() ([]byte, error) {
	var b []byte
	if m.Type != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.Type)
	}
	if len(m.Attrs) > 0 {
		b = appendStringMap(b, 2, m.Attrs)
	}
	return b, nil
}

func (m *CacheOptionsEntry) Unmarshal(data []byte) error {
	*m = CacheOptionsEntry{}
	return unmarshalFields(data, map[protowire.Number]fieldFn{
		1: stringField(&m.Type),
		2: func(b []byte, _ protowire.Type) (int, error) {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			if m.Attrs == nil {
				m.Attrs = map[string]string{}
			}
			return n, consumeStringMapEntry(v, m.Attrs)
		},
	})
}

// Exporter is one output directive of the build.
type Exporter struct {
	Type  string
	Attrs map[string]string
}

func (m *Exporter) Marshal() ([]byte, error) {
	var b []byte
	if m.Type != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.Type)
	}
	if len(m.Attrs) > 0 {
		b = appendStringMap(b, 2, m.Attrs)
	}
	return b, nil
}

func (m *Exporter) Unmarshal(data []byte) error {
	*m = Exporter{}
	return unmarshalFields(data, map[protowire.Number]fieldFn{
		1: stringField(&m.Type),
		2: func(b []byte, _ protowire.Type) (int, error) {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			if m.Attrs == nil {
				m.Attrs = map[string]string{}
			}
			return n, consumeStringMapEntry(v, m.Attrs)
		},
	})
}
