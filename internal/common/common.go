// Package common contains shared constants and small helpers used across
// Inkwell client components.
package common

// AuthorizationHeaderName is the HTTP header that carries the bearer
// credential on authenticated requests.
const AuthorizationHeaderName = "Authorization"

// AuthorizationScheme prefixes the credential inside the Authorization
// header, e.g. "Token eyJhbGci...".
const AuthorizationScheme = "Token"

// RequestIDHeaderName carries a per-request correlation id so the server
// can tie a client call to its own logs.
const RequestIDHeaderName = "X-Request-Id"

// CredentialKey is the name of the single persisted slot that holds the
// bearer credential in the local client database. No other component
// should write this key.
const CredentialKey = "credential"

// WipeByteArray overwrites the contents of the provided byte slice with
// zeros. Used to remove passwords from memory after use.
//
// If the slice is nil, the function does nothing.
func WipeByteArray(b []byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
}
