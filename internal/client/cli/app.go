package cli

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/client/authclient"
	"github.com/dmitrijs2005/authkeeper/internal/client/config"
)

// AuthAPI is the part of authclient.Client the CLI uses.
type AuthAPI interface {
	ReserveUUID(ctx context.Context) (*authclient.Reservation, error)
	Signup(ctx context.Context, reservationToken string, u authclient.NewUser) (*authclient.Registration, error)
	Login(ctx context.Context, login, password string) (*authclient.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*authclient.Tokens, error)
	GetUUID(ctx context.Context, login string) (uuid.UUID, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, accessToken string) (*authclient.Profile, error)
}

type App struct {
	config      *config.Config
	api         AuthAPI
	reader      *bufio.Reader
	session     *session
	accessToken string
}

func NewApp(c *config.Config) *App {
	return &App{
		config: c,
		api:    authclient.New(c.ServerURL, c.RequestTimeout),
		reader: bufio.NewReader(os.Stdin),
	}
}

func (a *App) isLoggedIn() bool {
	return a.session != nil
}

func (a *App) getStatus() string {
	if a.session == nil {
		return ""
	}
	return fmt.Sprintf("(%s)", a.session.Nickname)
}

// Run resumes a stored session if there is one and then blocks in the REPL
// until the user exits or stdin closes.
func (a *App) Run(ctx context.Context) {
	printlnFn("Welcome to authkeeper CLI (type 'help' for commands)")

	a.resume(ctx)

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}

func (a *App) resume(ctx context.Context) {
	s, err := loadSession(a.config.SessionFile)
	if err != nil {
		log.Printf("could not load session: %s", err)
		return
	}
	if s == nil {
		return
	}

	a.session = s
	if err := a.Refresh(ctx); err != nil {
		printlnFn("Stored session is no longer valid, please log in")
	}
}
