package domain

// AuthorizationStart binds an in-flight OAuth2 authorization attempt to the
// user and caller that opened it. The ID is the OAuth2 state parameter.
// Records are created when a login flow begins, read back once when Exact
// redirects with a code, and marked used on redemption.
type AuthorizationStart struct {
	ID        string
	UserID    string
	Timestamp int64
	Caller    string
	Scopes    string
	Used      bool
}
