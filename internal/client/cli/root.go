package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/arodchenko/inkwell/internal/client/session"
)

func (a *App) getStatus() string {
	st := a.session.State()
	switch {
	case st.Loading:
		return "(restoring)"
	case st.User != nil:
		return fmt.Sprintf("(%s)", st.User.Username)
	default:
		return ""
	}
}

// Root restores the persisted session, starts the background session
// watcher, and runs the REPL until the user exits.
func (a *App) Root(ctx context.Context) {
	printlnFn("Welcome to Inkwell (type 'help' for commands)")

	a.session.Restore(ctx)

	// Tell the user when the session dies out-of-band; the session
	// manager has its own subscription for the state transition.
	cancel := a.bus.Subscribe(a.notifySessionExpired)
	defer cancel()

	go a.StartSessionWatcher(ctx, a.config.SessionCheckInterval)

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)
}

// notifySessionExpired prints the same message the session manager
// records, so the REPL notice and the whoami error never disagree.
func (a *App) notifySessionExpired(string) {
	printlnFn(session.ExpiredMessage)
}
