// Package models defines the client-side data model for Inkwell.
package models

// User is an immutable snapshot of the authenticated identity as reported
// by the Inkwell API. The session manager holds at most one live instance
// and replaces it wholesale on every transition.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Image    string `json:"image,omitempty"`
}

// RegistrationFields carries the data required to create a new account.
// Password is a byte slice so callers can wipe it after use.
type RegistrationFields struct {
	Username string
	Email    string
	Password []byte
}
