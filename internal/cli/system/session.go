package system

import (
	"errors"
	"fmt"

	"github.com/julianstephens/habitlog/internal/cli"
	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/session"
)

type SessionCmd struct {
	Login  SessionLoginCmd  `cmd:"" help:"Sign in anonymously, creating a new user."`
	Whoami SessionWhoamiCmd `cmd:"" help:"Show the signed-in user."`
	Logout SessionLogoutCmd `cmd:"" help:"Forget the stored session."`
}

type SessionLoginCmd struct {
	New bool `help:"Replace an existing session with a new user."`
}

func (c *SessionLoginCmd) Run(ctx *cli.Context) error {
	m, err := ctx.Sessions()
	if err != nil {
		return err
	}
	if !c.New {
		if id, err := m.Current(); err == nil {
			fmt.Printf("Already signed in as %s\n", id.UserID())
			return nil
		}
	}
	id, err := m.SignIn()
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s\n", id.UserID())
	fmt.Printf("Session expires %s\n", id.ExpiresAt().In(ctx.Location).Format(constants.DateFormat))
	return nil
}

type SessionWhoamiCmd struct{}

func (c *SessionWhoamiCmd) Run(ctx *cli.Context) error {
	m, err := ctx.Sessions()
	if err != nil {
		return err
	}
	id, err := m.Current()
	switch {
	case errors.Is(err, session.ErrNoSession):
		return errors.New("not signed in. Use 'habitlog session login' to sign in")
	case errors.Is(err, session.ErrTokenExpired):
		return errors.New("session expired. Use 'habitlog session login' to sign in again")
	case err != nil:
		return err
	}
	fmt.Printf("User:    %s\n", id.UserID())
	fmt.Printf("Expires: %s\n", id.ExpiresAt().In(ctx.Location).Format(constants.DateFormat))
	return nil
}

type SessionLogoutCmd struct{}

func (c *SessionLogoutCmd) Run(ctx *cli.Context) error {
	m, err := ctx.Sessions()
	if err != nil {
		return err
	}
	if err := m.SignOut(); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return errors.New("not signed in")
		}
		return err
	}
	fmt.Println("✓ Signed out")
	return nil
}
