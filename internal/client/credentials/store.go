// Package credentials persists the bearer credential in the local client
// database. The store is scoped to a single named slot; absence of the
// slot means "signed out".
package credentials

import "context"

// Store is the persisted credential slot. Get returns "" when no
// credential is stored; a missing row is not an error. The slot is
// durable across process restarts and is owned exclusively by the
// session subsystem.
type Store interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}
