package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/arodchenko/inkwell/internal/client/models"
	"github.com/arodchenko/inkwell/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate
// testing. They point to interactive input helpers and can be swapped in
// tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Login prompts for credentials and signs in through the session
// manager. On failure the session's user-facing message is shown and the
// error is returned; the password is wiped before returning either way.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	u, err := a.session.Login(ctx, email, password)
	if err != nil {
		printlnFn(a.session.State().Err)
		return err
	}

	printlnFn(fmt.Sprintf("Welcome back, %s!", u.Username))
	return nil
}

// Register prompts for account details and creates a new account, which
// also signs the user in.
func (a *App) Register(ctx context.Context) error {
	username, err := getSimpleText(a.reader, "Choose a username", os.Stdout)
	if err != nil {
		return err
	}

	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	u, err := a.session.Register(ctx, models.RegistrationFields{
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		printlnFn(a.session.State().Err)
		return err
	}

	printlnFn(fmt.Sprintf("Welcome, %s!", u.Username))
	return nil
}

// Logout signs out. It never fails from the user's perspective.
func (a *App) Logout(ctx context.Context) error {
	a.session.Logout(ctx)
	printlnFn("Logged out.")
	return nil
}

// Whoami reports the current session state.
func (a *App) Whoami(ctx context.Context) error {
	st := a.session.State()
	switch {
	case st.Loading:
		printlnFn("Session is being restored...")
	case st.User != nil:
		printlnFn(fmt.Sprintf("%s <%s>", st.User.Username, st.User.Email))
	case st.Err != "":
		printlnFn("Not logged in: " + st.Err)
	default:
		printlnFn("Not logged in.")
	}
	return nil
}
