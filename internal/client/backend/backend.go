// Package backend talks to the Inkwell identity API. It is the only
// place that knows the wire format; everything above it works with
// models and the sentinel errors declared here.
package backend

import (
	"context"

	"github.com/arodchenko/inkwell/internal/client/models"
)

// Client is the identity-service boundary used by the session manager.
//
// Login and Register return the identity snapshot together with the
// bearer token the server issued for it. CurrentUser resolves the
// currently held credential to a user; it returns (nil, nil) when the
// server reports no user for it. Logout revokes the credential remotely;
// local sign-out does not depend on its outcome.
type Client interface {
	Login(ctx context.Context, email string, password []byte) (*models.User, string, error)
	Register(ctx context.Context, fields models.RegistrationFields) (*models.User, string, error)
	CurrentUser(ctx context.Context) (*models.User, error)
	Logout(ctx context.Context) error

	// SetCredential installs the bearer token applied to subsequent
	// authenticated requests. An empty string removes it.
	SetCredential(token string)

	Close() error
}
