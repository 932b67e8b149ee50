// Package auth carries the client's notion of user identity. The client
// never verifies tokens itself; it extracts the subject so state keyed by
// user (mutation queues, write callbacks) can be partitioned, and leaves
// verification to the server.
package auth

// User identifies the account the client is operating as. The zero value
// is the unauthenticated user.
type User struct {
	UID string
}

// UnauthenticatedUser is the identity used before sign-in.
var UnauthenticatedUser = User{}

// IsAuthenticated reports whether the user is signed in.
func (u User) IsAuthenticated() bool { return u.UID != "" }

// Equal reports whether two users are the same account.
func (u User) Equal(other User) bool { return u.UID == other.UID }

func (u User) String() string {
	if !u.IsAuthenticated() {
		return "unauthenticated"
	}
	return u.UID
}
