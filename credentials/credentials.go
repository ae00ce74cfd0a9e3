// Package credentials holds the access/refresh token pair for the portal
// session. It is pure storage: no validation of token content, no policy.
// Everything else in the client reads and writes tokens through a Store so
// that a fresh store can be constructed per test.
package credentials

// Pair is the current access/refresh token pair. The two fields are either
// both set or both empty; Set enforces this, so readers never observe a
// half-written pair.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// Empty reports whether the pair represents "no session". A stale refresh
// token without an access token is treated as empty.
func (p Pair) Empty() bool {
	return p.AccessToken == ""
}

// Store is the single owner of the credential pair. Writes are synchronous:
// a Get issued after Set or Clear returns observes the new value from any
// goroutine.
type Store interface {
	Get() Pair
	// Set replaces the pair wholesale. An empty access token atomically
	// clears both fields: a refresh token is never kept without an access
	// token to go with it.
	Set(access, refresh string)
	Clear()
}
