package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"os"
	"time"

	"github.com/arodchenko/inkwell/internal/client/backend"
	"github.com/arodchenko/inkwell/internal/client/config"
	"github.com/arodchenko/inkwell/internal/client/credentials"
	"github.com/arodchenko/inkwell/internal/client/models"
	"github.com/arodchenko/inkwell/internal/client/session"
	"github.com/arodchenko/inkwell/internal/client/signal"
	"github.com/arodchenko/inkwell/internal/client/storage"
	"github.com/arodchenko/inkwell/internal/logging"
)

// sessionManager is the slice of the session manager the CLI uses.
// *session.Manager satisfies it; tests can provide a fake.
type sessionManager interface {
	State() session.State
	Restore(ctx context.Context)
	Login(ctx context.Context, email string, password []byte) (*models.User, error)
	Register(ctx context.Context, fields models.RegistrationFields) (*models.User, error)
	Logout(ctx context.Context)
	Close()
}

// App ties the client components together for the interactive REPL.
type App struct {
	config  *config.Config
	session sessionManager
	api     backend.Client
	bus     *signal.Bus
	db      *sql.DB
	log     logging.Logger
	reader  *bufio.Reader
}

func NewApp(c *config.Config, log logging.Logger) (*App, error) {
	if log == nil {
		log = logging.NewNop()
	}

	ctx := context.Background()

	db, err := storage.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		log.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	bus := signal.NewBus()
	api := backend.NewHTTPClient(c.ServerEndpointURL, c.RequestTimeout, log)
	store := credentials.NewSQLiteStore(db)
	sess := session.NewManager(api, store, bus, log)

	return &App{
		config:  c,
		session: sess,
		api:     api,
		bus:     bus,
		db:      db,
		log:     log,
		reader:  bufio.NewReader(os.Stdin),
	}, nil
}

// Run starts the REPL and blocks until the user exits.
func (a *App) Run(ctx context.Context) {
	defer a.close()
	a.Root(ctx)
}

func (a *App) close() {
	a.session.Close()
	a.bus.Close()
	_ = a.api.Close()
	_ = a.db.Close()
}

func (a *App) isLoggedIn() bool {
	return a.session.State().User != nil
}

// StartSessionWatcher periodically re-validates the credential against
// the server while a user is signed in. When the server rejects it, the
// watcher announces the invalidation on the bus; the session manager
// (and any other subscriber) reacts from there. Revocation detected this
// way is the only token-lifecycle handling the client does.
func (a *App) StartSessionWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !a.isLoggedIn() {
				continue
			}

			cctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			_, err := a.api.CurrentUser(cctx)
			cancel()

			if errors.Is(err, backend.ErrUnauthorized) {
				a.bus.Publish("credential rejected by server")
			}

		case <-ctx.Done():
			return
		}
	}
}
