package types

// TokenStore holds the bearer token for the current session.
type TokenStore interface {
	Get() (string, bool)
	Set(token string) error
	Clear() error
}
