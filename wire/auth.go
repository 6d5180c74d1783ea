package wire

import "google.golang.org/protobuf/encoding/protowire"

// CredentialsRequest asks for registry credentials for a host.
type CredentialsRequest struct {
	Host string
}

func (m *CredentialsRequest) Marshal() ([]byte, error) {
	var b []byte
	if m.Host != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.Host)
	}
	return b, nil
}

func (m *CredentialsRequest) Unmarshal(data []byte) error {
	*m = CredentialsRequest{}
	return unmarshalFields(data, map[protowire.Number]fieldFn{
		1: stringField(&m.Host),
	})
}

// CredentialsResponse carries a username/secret pair. Both empty means
// anonymous access.
type CredentialsResponse struct {
	Username string
	Secret   string
}

func (m *CredentialsResponse) Marshal() ([]byte, error) {
	var b []byte
	if m.Username != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.Username)
	}
	if m.Secret != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, m.Secret)
	}
	return b, nil
}

func (m *CredentialsResponse) Unmarshal(data []byte) error {
	*m = CredentialsResponse{}
	return unmarshalFields(data, map[protowire.Number]fieldFn{
		1: stringField(&m.Username),
		2: stringField(&m.Secret),
	})
}

// FetchTokenRequest asks for a registry bearer token.
type FetchTokenRequest struct {
	ClientID string
	Host     string
	Realm    string
	Service  string
	Scopes   []string
}

func (m *FetchTokenRequest) Marshal() ([]byte, error) {
	var b []byte
	if m.ClientID != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.ClientID)
	}
	if m.Host != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, m.Host)
	}
	if m.Realm != "" {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, m.Realm)
	}
	if m.Service != "" {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendString(b, m.Service)
	}
	for _, s := range m.Scopes {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	return b, nil
}

func (m *FetchTokenRequest) Unmarshal(data []byte) error {
	*m = FetchTokenRequest{}
	return unmarshalFields(data, map[protowire.Number]fieldFn{
		1: stringField(&m.ClientID),
		2: stringField(&m.Host),
		3: stringField(&m.Realm),
		4: stringField(&m.Service),
		5: func(b []byte, _ protowire.Type) (int, error) {
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			m.Scopes = append(m.Scopes, v)
			return n, nil
		},
	})
}

// FetchTokenResponse carries a bearer token; an empty token tells the daemon
// to obtain its own.
type FetchTokenResponse struct {
	Token     string
	ExpiresIn int64
	IssuedAt  int64
}

func (m *FetchTokenResponse) Marshal() ([]byte, error) {
	var b []byte
	if m.Token != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.Token)
	}
	if m.ExpiresIn != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.ExpiresIn))
	}
	if m.IssuedAt != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.IssuedAt))
	}
	return b, nil
}

func (m *FetchTokenResponse) Unmarshal(data []byte) error {
	*m = FetchTokenResponse{}
	return unmarshalFields(data, map[protowire.Number]fieldFn{
		1: stringField(&m.Token),
		2: int64Field(&m.ExpiresIn),
		3: int64Field(&m.IssuedAt),
	})
}

// GetTokenAuthorityRequest asks for the public key of the token signer.
type GetTokenAuthorityRequest struct {
	Host string
	Salt []byte
}

func (m *GetTokenAuthorityRequest) Marshal() ([]byte, error) {
	var b []byte
	if m.Host != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.Host)
	}
	if len(m.Salt) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Salt)
	}
	return b, nil
}

func (m *GetTokenAuthorityRequest) Unmarshal(data []byte) error {
	*m = GetTokenAuthorityRequest{}
	return unmarshalFields(data, map[protowire.Number]fieldFn{
		1: stringField(&m.Host),
		2: bytesField(&m.Salt),
	})
}

// GetTokenAuthorityResponse carries the signer public key.
type GetTokenAuthorityResponse struct {
	PublicKey []byte
}

func (m *GetTokenAuthorityResponse) Marshal() ([]byte, error) {
	var b []byte
	if len(m.PublicKey) > 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, m.PublicKey)
	}
	return b, nil
}

func (m *GetTokenAuthorityResponse) Unmarshal(data []byte) error {
	*m = GetTokenAuthorityResponse{}
	return unmarshalFields(data, map[protowire.Number]fieldFn{
		1: bytesField(&m.PublicKey),
	})
}

// GetSecretRequest asks for a build secret by id.
type GetSecretRequest struct {
	ID          string
	Annotations map[string]string
}

func (m *GetSecretRequest) Marshal() ([]byte, error) {
	var b []byte
	if m.ID != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.ID)
	}
	if len(m.Annotations) > 0 {
		b = appendStringMap(b, 2, m.Annotations)
	}
	return b, nil
}

func (m *GetSecretRequest) Unmarshal(data []byte) error {
	*m = GetSecretRequest{}
	return unmarshalFields(data, map[protowire.Number]fieldFn{
		1: stringField(&m.ID),
		2: func(b []byte, _ protowire.Type) (int, error) {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			if m.Annotations == nil {
				m.Annotations = map[string]string{}
			}
			return n, consumeStringMapEntry(v, m.Annotations)
		},
	})
}

// GetSecretResponse carries the secret bytes.
type GetSecretResponse struct {
	Data []byte
}

func (m *GetSecretResponse) Marshal() ([]byte, error) {
	var b []byte
	if len(m.Data) > 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Data)
	}
	return b, nil
}

func (m *GetSecretResponse) Unmarshal(data []byte) error {
	*m = GetSecretResponse{}
	return unmarshalFields(data, map[protowire.Number]fieldFn{
		1: bytesField(&m.Data),
	})
}
