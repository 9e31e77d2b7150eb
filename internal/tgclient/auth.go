package tgclient

import (
	"context"

	"github.com/hrygo/telecopilot/internal/apperr"
	"github.com/hrygo/telecopilot/internal/model"
)

// SendPhone submits a phone number and requests a login code. Valid from
// WaitPhoneNumber only; transitions to WaitCode on success.
func (c *Client) SendPhone(ctx context.Context, phone string) error {
	if _, ok := c.GetAuthState().(model.WaitPhoneNumber); !ok {
		return apperr.Auth(errWrongAuthState("WaitPhoneNumber"))
	}

	c.transportMu.RLock()
	token, err := c.transport.RequestLoginCode(ctx, phone)
	c.transportMu.RUnlock()
	if err != nil {
		return apperr.Auth(err)
	}

	c.stateMu.Lock()
	c.loginToken = token
	c.stateMu.Unlock()
	c.setState(model.WaitCode{Phone: phone})
	return nil
}

// SendCode submits the login code received over SMS or another device.
// Valid from WaitCode only. Transitions to Ready on plain sign-in, to
// WaitPassword if the account has two-factor enabled, or stays in
// WaitCode (surfacing an error) if the code was wrong.
func (c *Client) SendCode(ctx context.Context, code string) error {
	st, ok := c.GetAuthState().(model.WaitCode)
	if !ok {
		return apperr.Auth(errWrongAuthState("WaitCode"))
	}

	c.stateMu.RLock()
	token := c.loginToken
	c.stateMu.RUnlock()

	c.transportMu.RLock()
	res, err := c.transport.SignIn(ctx, token, code)
	c.transportMu.RUnlock()
	if err != nil {
		return apperr.Auth(err)
	}

	switch res.Kind {
	case SignedIn:
		c.stateMu.Lock()
		c.currentUser = &res.User
		c.stateMu.Unlock()
		if err := c.saveSession(); err != nil {
			return apperr.Session(err)
		}
		c.setState(model.Ready{})
		return nil
	case PasswordRequired:
		c.stateMu.Lock()
		c.passwordTok = res.PasswordToken
		c.stateMu.Unlock()
		c.setState(model.WaitPassword{Hint: res.Hint})
		return apperr.TwoFactorRequired(res.Hint)
	default:
		c.setState(model.WaitCode{Phone: st.Phone})
		return apperr.InvalidCode()
	}
}

// SendPassword submits the two-factor password. Valid from WaitPassword
// only; transitions to Ready on success.
func (c *Client) SendPassword(ctx context.Context, password string) error {
	if _, ok := c.GetAuthState().(model.WaitPassword); !ok {
		return apperr.Auth(errWrongAuthState("WaitPassword"))
	}

	c.transportMu.RLock()
	me, err := c.transport.CheckPassword(ctx, password)
	c.transportMu.RUnlock()
	if err != nil {
		return apperr.Auth(err)
	}

	c.stateMu.Lock()
	c.currentUser = &me
	c.stateMu.Unlock()
	if err := c.saveSession(); err != nil {
		return apperr.Session(err)
	}
	c.setState(model.Ready{})
	return nil
}

// Logout revokes the session server-side, wipes the chat object cache,
// and returns the client to WaitPhoneNumber for a fresh login. Valid
// from any state.
func (c *Client) Logout(ctx context.Context) error {
	c.setState(model.LoggingOut{})

	c.transportMu.RLock()
	err := c.transport.SignOut(ctx)
	c.transportMu.RUnlock()

	c.cache.invalidate()
	c.stateMu.Lock()
	c.currentUser = nil
	c.loginToken = ""
	c.passwordTok = ""
	c.stateMu.Unlock()

	if c.sessionPath != "" {
		_ = removeSessionFile(c.sessionPath)
	}

	if err != nil {
		c.setState(model.Closed{})
		return apperr.Auth(err)
	}
	c.setState(model.WaitPhoneNumber{})
	return nil
}

func errWrongAuthState(want string) error {
	return apperr.Internal("operation requires auth state "+want, nil)
}
