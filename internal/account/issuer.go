package account

import "crypto/subtle"

// CredentialIssuer decides whether a signup may receive admin credentials.
type CredentialIssuer interface {
	Verify(candidate string) bool
}

// SecretIssuer accepts one configured issuance secret. An empty secret denies everyone.
type SecretIssuer struct {
	secret []byte
}

func NewSecretIssuer(secret string) SecretIssuer {
	return SecretIssuer{secret: []byte(secret)}
}

func (s SecretIssuer) Verify(candidate string) bool {
	if len(s.secret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(s.secret, []byte(candidate)) == 1
}

// DenyAll never issues admin credentials.
type DenyAll struct{}

func (DenyAll) Verify(string) bool { return false }
