package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/client/authclient"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
)

// Prompt indirections, swapped out in tests.
var (
	getText        = GetRequiredText
	getPassword    = func(w io.Writer) ([]byte, error) { return GetPassword(w, "Enter password") }
	getNewPassword = GetNewPassword
)

var errNotLoggedIn = errors.New("not logged in")

// readPreHashed reads a password with prompt and returns its PBKDF2 form
// for id. The raw bytes are wiped before returning.
func readPreHashed(prompt func(io.Writer) ([]byte, error), id uuid.UUID) (string, error) {
	pw, err := prompt(os.Stdout)
	if err != nil {
		return "", err
	}
	defer wipe(pw)
	if len(pw) == 0 {
		return "", fmt.Errorf("%w: empty password", common.ErrorValidation)
	}
	return cryptox.PreHash(pw, id), nil
}

// Signup reserves a UUID, asks for email, nickname and password, and
// creates the account. On success the user is logged in.
func (a *App) Signup(ctx context.Context) error {
	rsv, err := a.api.ReserveUUID(ctx)
	if err != nil {
		return a.report("signup", err)
	}

	email, err := getText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}
	nickname, err := getText(a.reader, "Enter nickname", os.Stdout)
	if err != nil {
		return err
	}
	password, err := readPreHashed(getNewPassword, rsv.UUID)
	if err != nil {
		return a.report("signup", err)
	}

	reg, err := a.api.Signup(ctx, rsv.Token, authclient.NewUser{
		Email:    email,
		Nickname: nickname,
		Password: password,
	})
	if err != nil {
		return a.report("signup", err)
	}

	a.accessToken = reg.AccessToken
	a.startSession(&session{Nickname: nickname, UserID: reg.UUID, RefreshToken: reg.RefreshToken})
	printlnFn("Success! Your id is", reg.UUID.String())
	return nil
}

// Login accepts a nickname or an email. The UUID is fetched first because
// it salts the password pre-hash.
func (a *App) Login(ctx context.Context) error {
	login, err := getText(a.reader, "Enter nickname or email", os.Stdout)
	if err != nil {
		return err
	}

	id, err := a.api.GetUUID(ctx, login)
	if errors.Is(err, common.ErrorNotFound) {
		// Same answer as a wrong password.
		return a.report("login", common.ErrorUnauthorized)
	}
	if err != nil {
		return a.report("login", err)
	}

	password, err := readPreHashed(getPassword, id)
	if err != nil {
		return a.report("login", err)
	}

	pair, err := a.api.Login(ctx, login, password)
	if err != nil {
		return a.report("login", err)
	}

	a.accessToken = pair.AccessToken
	a.startSession(&session{Nickname: login, UserID: id, RefreshToken: pair.RefreshToken})
	printlnFn("Login successful")
	return nil
}

// Refresh trades the refresh token for a new access token. A rejected
// token ends the local session.
func (a *App) Refresh(ctx context.Context) error {
	if a.session == nil {
		return a.report("refresh", errNotLoggedIn)
	}

	pair, err := a.api.Refresh(ctx, a.session.RefreshToken)
	if errors.Is(err, common.ErrorUnauthorized) {
		a.dropSession()
		return a.report("refresh", err)
	}
	if err != nil {
		return a.report("refresh", err)
	}

	a.accessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		a.session.RefreshToken = pair.RefreshToken
		if err := saveSession(a.config.SessionFile, a.session); err != nil {
			log.Printf("could not save session: %s", err)
		}
	}
	return nil
}

// WhoAmI prints the profile, refreshing the access token once if it has
// expired.
func (a *App) WhoAmI(ctx context.Context) error {
	if a.session == nil {
		return a.report("whoami", errNotLoggedIn)
	}
	if a.accessToken == "" {
		if err := a.Refresh(ctx); err != nil {
			return err
		}
	}

	p, err := a.api.Me(ctx, a.accessToken)
	if errors.Is(err, common.ErrorUnauthorized) {
		if err := a.Refresh(ctx); err != nil {
			return err
		}
		p, err = a.api.Me(ctx, a.accessToken)
	}
	if err != nil {
		return a.report("whoami", err)
	}

	printlnFn(fmt.Sprintf("%s <%s> id=%s verified=%t since %s",
		p.Nickname, p.Email, p.UUID, p.Verified, p.CreatedAt.Format("2006-01-02")))
	return nil
}

// Logout revokes the refresh token on the server and forgets the session.
// The local session is dropped even if the server call fails.
func (a *App) Logout(ctx context.Context) error {
	if a.session == nil {
		return a.report("logout", errNotLoggedIn)
	}

	err := a.api.Logout(ctx, a.session.RefreshToken)
	a.dropSession()
	if err != nil {
		return a.report("logout", err)
	}
	printlnFn("Logged out")
	return nil
}

func (a *App) startSession(s *session) {
	a.session = s
	if err := saveSession(a.config.SessionFile, s); err != nil {
		log.Printf("could not save session: %s", err)
	}
}

func (a *App) dropSession() {
	a.session = nil
	a.accessToken = ""
	if err := clearSession(a.config.SessionFile); err != nil {
		log.Printf("could not clear session: %s", err)
	}
}

// report prints a one-line failure and returns err unchanged.
func (a *App) report(op string, err error) error {
	var apiErr *authclient.APIError
	switch {
	case errors.Is(err, common.ErrorUnauthorized):
		printlnFn(op + " failed: authentication failed")
	case errors.As(err, &apiErr) && apiErr.Detail != "":
		printlnFn(op + " failed: " + apiErr.Detail)
	default:
		printlnFn(op+" failed:", err.Error())
	}
	return err
}
