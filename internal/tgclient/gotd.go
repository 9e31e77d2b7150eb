package tgclient

import (
	"context"
	"errors"
	"sync"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	tgauth "github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"

	"github.com/hrygo/telecopilot/internal/model"
)

// gotdTransport is the github.com/gotd/td-backed Transport. It bridges
// gotd's blocking, callback-driven auth.Flow onto the step-by-step
// RequestLoginCode/SignIn/CheckPassword calls the rest of the package
// expects by running the flow in a background goroutine and handing it
// an authenticator whose callbacks block on channels fed by those calls.
type gotdTransport struct {
	client  *telegram.Client
	api     *tg.Client
	appID   int
	appHash string

	runCancel context.CancelFunc
	runDone   chan struct{}

	authMu sync.Mutex
	bridge *authBridge
}

// NewGotdTransport constructs a Transport over a single MTProto
// connection, persisting the session to sessionPath via gotd's own file
// storage.
func NewGotdTransport(appID int, appHash, sessionPath string) Transport {
	t := &gotdTransport{appID: appID, appHash: appHash}
	t.client = telegram.NewClient(appID, appHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: sessionPath},
		Device: telegram.DeviceConfig{
			DeviceModel:   "telecopilot-desktop",
			SystemVersion: "linux",
			AppVersion:    "0.1.0",
		},
	})
	t.api = t.client.API()
	return t
}

func (t *gotdTransport) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	t.runCancel = cancel
	ready := make(chan error, 1)
	t.runDone = make(chan struct{})

	go func() {
		defer close(t.runDone)
		err := t.client.Run(runCtx, func(ctx context.Context) error {
			ready <- nil
			<-ctx.Done()
			return ctx.Err()
		})
		select {
		case ready <- err:
		default:
		}
	}()

	select {
	case err := <-ready:
		return err
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

func (t *gotdTransport) IsAuthorized(ctx context.Context) (bool, error) {
	status, err := t.client.Auth().Status(ctx)
	if err != nil {
		return false, err
	}
	return status.Authorized, nil
}

func (t *gotdTransport) GetMe(ctx context.Context) (model.User, error) {
	me, err := t.client.Self(ctx)
	if err != nil {
		return model.User{}, err
	}
	return convertUser(me), nil
}

func (t *gotdTransport) SessionBlob() []byte {
	// gotd's session.FileStorage persists directly to disk on every auth
	// state change; there is nothing additional for the caller to save.
	return nil
}

// authBridge implements tgauth.UserAuthenticator. Phone is known up
// front; Code and Password block until RequestLoginCode/SignIn/
// CheckPassword feed the channel, and each callback also announces that
// it has been reached so the caller-facing methods know which state the
// flow has moved to.
type authBridge struct {
	phone string

	codeReached     chan string
	codeCh          chan string
	passwordReached chan struct{}
	passwordCh      chan string
	result          chan authResult
}

type authResult struct {
	user *tg.User
	err  error
}

func newAuthBridge(phone string) *authBridge {
	return &authBridge{
		phone:           phone,
		codeReached:     make(chan string, 1),
		codeCh:          make(chan string, 1),
		passwordReached: make(chan struct{}, 1),
		passwordCh:      make(chan string, 1),
		result:          make(chan authResult, 1),
	}
}

func (b *authBridge) Phone(ctx context.Context) (string, error) {
	return b.phone, nil
}

func (b *authBridge) Code(ctx context.Context, sentCode *tg.AuthSentCodeObj) (string, error) {
	select {
	case b.codeReached <- sentCode.PhoneCodeHash:
	default:
	}
	select {
	case code := <-b.codeCh:
		return code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *authBridge) Password(ctx context.Context) (string, error) {
	select {
	case b.passwordReached <- struct{}{}:
	default:
	}
	select {
	case pw := <-b.passwordCh:
		return pw, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *authBridge) AcceptTermsOfService(ctx context.Context, tos tg.HelpTermsOfService) error {
	return nil
}

func (b *authBridge) SignUp(ctx context.Context) (tgauth.UserInfo, error) {
	return tgauth.UserInfo{}, errors.New("tgclient: account sign-up is not supported")
}

func (t *gotdTransport) RequestLoginCode(ctx context.Context, phone string) (string, error) {
	t.authMu.Lock()
	bridge := newAuthBridge(phone)
	t.bridge = bridge
	t.authMu.Unlock()

	flow := tgauth.NewFlow(bridge, tgauth.SendCodeOptions{})
	go func() {
		_, err := flow.Run(context.Background(), t.client.Auth())
		var me *tg.User
		if err == nil {
			if self, serr := t.client.Self(context.Background()); serr == nil {
				me = self
			}
		}
		bridge.result <- authResult{user: me, err: err}
	}()

	select {
	case phoneCodeHash := <-bridge.codeReached:
		return phoneCodeHash, nil
	case res := <-bridge.result:
		if res.err != nil {
			return "", res.err
		}
		return "", errors.New("tgclient: login completed without a code prompt")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *gotdTransport) SignIn(ctx context.Context, loginToken, code string) (SignInResult, error) {
	t.authMu.Lock()
	bridge := t.bridge
	t.authMu.Unlock()
	if bridge == nil {
		return SignInResult{}, errors.New("tgclient: no login in progress")
	}

	select {
	case bridge.codeCh <- code:
	case <-ctx.Done():
		return SignInResult{}, ctx.Err()
	}

	select {
	case <-bridge.passwordReached:
		return SignInResult{Kind: PasswordRequired, PasswordToken: loginToken}, nil
	case res := <-bridge.result:
		if res.err != nil {
			return SignInResult{Kind: InvalidLoginCode}, nil
		}
		return SignInResult{Kind: SignedIn, User: convertUser(res.user)}, nil
	case <-ctx.Done():
		return SignInResult{}, ctx.Err()
	}
}

func (t *gotdTransport) CheckPassword(ctx context.Context, password string) (model.User, error) {
	t.authMu.Lock()
	bridge := t.bridge
	t.authMu.Unlock()
	if bridge == nil {
		return model.User{}, errors.New("tgclient: no login in progress")
	}

	select {
	case bridge.passwordCh <- password:
	case <-ctx.Done():
		return model.User{}, ctx.Err()
	}

	select {
	case res := <-bridge.result:
		if res.err != nil {
			return model.User{}, res.err
		}
		return convertUser(res.user), nil
	case <-ctx.Done():
		return model.User{}, ctx.Err()
	}
}

func (t *gotdTransport) SignOut(ctx context.Context) error {
	_, err := t.api.AuthLogOut(ctx)
	return err
}

func convertUser(u *tg.User) model.User {
	if u == nil {
		return model.User{}
	}
	out := model.User{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
	if u.Username != "" {
		username := u.Username
		out.Username = &username
	}
	if u.Phone != "" {
		phone := u.Phone
		out.Phone = &phone
	}
	return out
}
