// Package cli provides the interactive Inkwell command-line client.
//
// It wires configuration, the local credential database, the identity
// API client, the invalidation bus, and the session manager into an
// interactive REPL. Typical flow: restore the persisted session, start
// the background session watcher, and execute user commands.
//
// Commands:
//   - register / login — establish a session
//   - whoami           — show the current session state
//   - logout           — sign out
//   - exit | quit      — leave the program
//
// The REPL is started via App.Root(ctx), which blocks until the user
// exits. See App, StartSessionWatcher, and runREPL for details.
package cli
