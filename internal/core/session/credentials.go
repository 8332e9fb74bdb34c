package session

// CredentialSource yields the bearer token presented on every connection
// attempt. An empty token means no credential is available.
type CredentialSource interface {
	Token() string
}

// StaticToken is a fixed credential.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// CredentialFunc adapts a function to CredentialSource.
type CredentialFunc func() string

func (f CredentialFunc) Token() string {
	if f == nil {
		return ""
	}
	return f()
}
