package authstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"pumpconsole/pkg/domain"
	"pumpconsole/services/console/internal/apiclient"
	"pumpconsole/services/console/internal/session"
)

const (
	LoginPath                = "/login"
	AdminDashboardPath       = "/dashboard"
	DistributorDashboardPath = "/distributor/dashboard"
)

// GetRedirectPath returns the landing page for user. Roles other than
// distributor, including unrecognized ones, land on the admin dashboard.
func GetRedirectPath(user *domain.User) string {
	if user == nil {
		return LoginPath
	}
	if user.Role == domain.RoleDistributor {
		return DistributorDashboardPath
	}
	return AdminDashboardPath
}

// AuthAPI is the part of the backend client used by the login flows.
type AuthAPI interface {
	Login(ctx context.Context, req apiclient.LoginRequest) (apiclient.LoginResponse, error)
	Register(ctx context.Context, req apiclient.RegisterRequest) (apiclient.RegisterResponse, error)
}

type Config struct {
	API             AuthAPI
	Refresher       *session.Refresher
	Credential      session.Credential
	RefreshInterval time.Duration
}

// Context owns the process-wide auth state. It is the only writer of the
// current user; everything else reads through its accessors.
type Context struct {
	api        AuthAPI
	refresher  *session.Refresher
	store      session.Store
	credential session.Credential
	interval   time.Duration

	initOnce sync.Once
	initErr  error

	mu          sync.RWMutex
	user        *domain.User
	loading     bool
	stopRefresh context.CancelFunc
	subscribers map[int]chan struct{}
	nextSub     int
}

// New returns a Context in the loading state. Call Init to restore a stored
// session.
func New(cfg Config) *Context {
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = session.DefaultRefreshInterval
	}
	return &Context{
		api:         cfg.API,
		refresher:   cfg.Refresher,
		store:       cfg.Refresher.Store(),
		credential:  cfg.Credential,
		interval:    interval,
		loading:     true,
		subscribers: make(map[int]chan struct{}),
	}
}

// Init restores the stored session once per process. Loading is cleared
// whether or not a user was restored; later calls return the first result.
func (c *Context) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		defer c.setLoading(false)
		ok, err := c.refresher.CheckAndRefresh(ctx)
		if err != nil {
			c.initErr = fmt.Errorf("restore session: %w", err)
			return
		}
		if !ok {
			return
		}
		snap, ok, err := c.store.Load(ctx)
		if err != nil {
			c.initErr = fmt.Errorf("load user: %w", err)
			return
		}
		if ok {
			user := snap.User
			c.SetUser(&user)
			slog.Info("session restored", "user_id", user.ID, "role", user.Role)
		}
	})
	return c.initErr
}

// User returns a copy of the current user, or nil.
func (c *Context) User() *domain.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

func (c *Context) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

func (c *Context) IsAuthenticated() bool {
	return c.User() != nil
}

// RedirectPath is GetRedirectPath for the current user.
func (c *Context) RedirectPath() string {
	return GetRedirectPath(c.User())
}

// SetUser replaces the current user. A non-nil user starts the periodic
// refresh loop; nil stops it.
func (c *Context) SetUser(u *domain.User) {
	c.mu.Lock()
	if u == nil {
		c.user = nil
		if c.stopRefresh != nil {
			c.stopRefresh()
			c.stopRefresh = nil
		}
	} else {
		copied := *u
		c.user = &copied
		if c.stopRefresh == nil {
			loopCtx, cancel := context.WithCancel(context.Background())
			c.stopRefresh = cancel
			go c.refresher.Run(loopCtx, c.interval, c.expire)
		}
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Context) setLoading(v bool) {
	c.mu.Lock()
	c.loading = v
	c.mu.Unlock()
	c.notify()
}

// Login authenticates against the backend, persists the user and session,
// and makes the user current.
func (c *Context) Login(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return domain.User{}, errors.New("email and password required")
	}
	resp, err := c.api.Login(ctx, apiclient.LoginRequest{Email: email, Password: password})
	if err != nil {
		trace("login", "failure", "email", email, "err", err)
		return domain.User{}, err
	}
	user := *resp.User
	sess := session.Complete(*resp.Session)
	if err := c.store.Save(ctx, user, sess); err != nil {
		trace("login", "failure", "email", email, "err", err)
		return domain.User{}, fmt.Errorf("persist session: %w", err)
	}
	c.credential.SetToken(sess.AccessToken)
	c.SetUser(&user)
	trace("login", "success", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Register creates an account on the backend. The current session is not
// affected.
func (c *Context) Register(ctx context.Context, req apiclient.RegisterRequest) (apiclient.RegisterResponse, error) {
	resp, err := c.api.Register(ctx, req)
	if err != nil {
		trace("register", "failure", "email", req.Email, "err", err)
		return apiclient.RegisterResponse{}, err
	}
	trace("register", "success", "email", req.Email, "role", req.Role)
	return resp, nil
}

// Logout clears the stored user and session together and drops the
// credential. State is cleared even if the store fails.
func (c *Context) Logout(ctx context.Context) error {
	var userID string
	if u := c.User(); u != nil {
		userID = u.ID
	}
	err := c.store.Clear(ctx)
	c.credential.ClearToken()
	c.SetUser(nil)
	if err != nil {
		trace("logout", "failure", "user_id", userID, "err", err)
		return fmt.Errorf("clear session: %w", err)
	}
	trace("logout", "success", "user_id", userID)
	return nil
}

// BeforeRequest runs ahead of authenticated backend calls and refreshes the
// session when it is close to expiry.
func (c *Context) BeforeRequest(ctx context.Context) {
	if !c.IsAuthenticated() {
		return
	}
	ok, err := c.refresher.CheckAndRefresh(ctx)
	if err != nil {
		slog.Warn("session check before request failed", "err", err)
		return
	}
	if !ok {
		c.expire()
	}
}

// HandleUnauthorized reacts to a 401 from the backend by forcing a refresh,
// logging out if that fails.
func (c *Context) HandleUnauthorized(ctx context.Context) {
	if !c.IsAuthenticated() {
		return
	}
	ok, err := c.refresher.ForceRefresh(ctx)
	if err != nil {
		slog.Warn("refresh after unauthorized response failed", "err", err)
	}
	if !ok {
		c.expire()
	}
}

func (c *Context) expire() {
	if !c.IsAuthenticated() {
		return
	}
	c.credential.ClearToken()
	c.SetUser(nil)
	slog.Warn("security_event", "event", "session_expired", "outcome", "failure")
}

// Subscribe returns a channel that receives a tick after every state change,
// and a function that cancels the subscription.
func (c *Context) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = ch
	c.mu.Unlock()
	return ch, func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

func (c *Context) notify() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close stops the refresh loop without touching stored state.
func (c *Context) Close() {
	c.mu.Lock()
	if c.stopRefresh != nil {
		c.stopRefresh()
		c.stopRefresh = nil
	}
	c.mu.Unlock()
}

// trace logs auth state changes at debug level. The HTTP layer owns the
// security_event audit trail for the same operations.
func trace(op, outcome string, attrs ...any) {
	logAttrs := []any{"op", op, "outcome", outcome}
	logAttrs = append(logAttrs, attrs...)
	slog.Debug("auth state change", logAttrs...)
}
