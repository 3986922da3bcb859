package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"boletodesk/internal/backend"
	"boletodesk/internal/config"
	"boletodesk/internal/grouping"
	"boletodesk/internal/logging"
	"boletodesk/internal/records"
	"boletodesk/internal/services"
	"boletodesk/internal/session"
	"boletodesk/internal/workflow"
)

// ErrLocked indicates another console invocation holds the state lock.
var ErrLocked = errors.New("another boletodesk command is running")

const defaultLockTimeout = 5 * time.Second

// Option configures a Console.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	lockTimeout time.Duration
	httpClient  backend.HTTPDoer
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLockTimeout bounds how long Open waits for the state lock.
func WithLockTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.lockTimeout = timeout
	}
}

// WithHTTPClient overrides the HTTP client used for backend calls.
func WithHTTPClient(client backend.HTTPDoer) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// Console is one locked invocation of the operator console.
type Console struct {
	cfg      *config.Config
	logger   *slog.Logger
	lock     *flock.Flock
	store    *session.Store
	registry *session.Registry
	opts     options

	mu          sync.Mutex
	client      *backend.Client
	tokenSource TokenSource
	revoked     bool
	workflows   map[string]*workflow.Workflow
	closed      bool
}

// Open locks the state directory and loads the session registry.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Console, error) {
	if cfg == nil {
		return nil, errors.New("console requires configuration")
	}
	o := options{logger: logging.NewNop(), lockTimeout: defaultLockTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	lock := flock.New(cfg.LockPath())
	lockCtx, cancel := context.WithTimeout(ctx, o.lockTimeout)
	defer cancel()
	ok, err := lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	store, err := session.Open(cfg)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	snap, err := store.Load(ctx)
	if err != nil {
		_ = store.Close()
		_ = lock.Unlock()
		return nil, err
	}
	registry := session.NewRegistry(session.WithCapacity(cfg.Console.MaxSessions))
	registry.Load(snap)

	c := &Console{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(o.logger, "console"),
		lock:      lock,
		store:     store,
		registry:  registry,
		opts:      o,
		workflows: map[string]*workflow.Workflow{},
	}
	if err := c.connect(); err != nil {
		_ = c.release()
		return nil, err
	}
	c.logger.Debug("console opened",
		logging.Int("sessions", registry.Len()),
		logging.String("token_source", string(c.tokenSource)))
	return c, nil
}

// connect (re)builds the backend client from the current credential. The
// request metrics survive a rebuild. Once a credential was rejected no
// stored token is used until the next login.
func (c *Console) connect() error {
	c.mu.Lock()
	revoked := c.revoked
	c.mu.Unlock()
	token, source := "", TokenNone
	if !revoked {
		var err error
		if token, source, err = LoadToken(c.cfg); err != nil {
			return err
		}
	}
	clientOpts := []backend.Option{
		backend.WithLogger(c.opts.logger),
		backend.WithTimeout(c.cfg.BackendTimeout()),
	}
	if token != "" {
		clientOpts = append(clientOpts, backend.WithToken(token))
	}
	if c.opts.httpClient != nil {
		clientOpts = append(clientOpts, backend.WithHTTPClient(c.opts.httpClient))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		clientOpts = append(clientOpts, backend.WithMetrics(c.client.Metrics()))
	}
	client, err := backend.New(c.cfg.Backend.BaseURL, clientOpts...)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "", "backend client", "", err)
	}
	c.client = client
	c.tokenSource = source
	return nil
}

// Config returns the loaded configuration.
func (c *Console) Config() *config.Config {
	return c.cfg
}

// Registry returns the session registry.
func (c *Console) Registry() *session.Registry {
	return c.registry
}

// Client returns the backend client.
func (c *Console) Client() *backend.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// TokenSource reports where the active credential came from.
func (c *Console) TokenSource() TokenSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokenSource
}

// Login exchanges credentials for a token, stores it and reconnects.
func (c *Console) Login(ctx context.Context, email, password string) (*records.Login, error) {
	login, err := c.Client().Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := SaveToken(c.cfg, login.AccessToken); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.revoked = false
	c.mu.Unlock()
	if err := c.connect(); err != nil {
		return nil, err
	}
	c.logger.Info("operator logged in",
		logging.String(logging.FieldEventType, "login"),
		logging.String("user", login.User.Email))
	return login, nil
}

// Logout drops the saved login token.
func (c *Console) Logout() error {
	if err := RemoveToken(c.cfg); err != nil {
		return err
	}
	return c.connect()
}

// LogoutError reports a credential the backend rejected and the source it
// was loaded from.
type LogoutError struct {
	Source TokenSource
	Err    error
}

func (e *LogoutError) Error() string {
	return e.Err.Error()
}

func (e *LogoutError) Unwrap() error {
	return e.Err
}

// HandleError forces a logout when err is an authentication failure and
// returns it as a *LogoutError. Any other error is returned unchanged, as is
// one that was already handled.
func (c *Console) HandleError(err error) error {
	if err == nil || !errors.Is(err, services.ErrUnauthorized) {
		return err
	}
	var handled *LogoutError
	if errors.As(err, &handled) {
		return err
	}
	c.mu.Lock()
	source := c.tokenSource
	c.revoked = true
	c.mu.Unlock()
	c.logger.Warn("backend rejected credential; logging out",
		logging.String(logging.FieldEventType, "forced_logout"),
		logging.String("token_source", string(source)),
		logging.Error(err))
	if logoutErr := c.Logout(); logoutErr != nil {
		c.logger.Warn("forced logout failed", logging.Error(logoutErr))
	}
	return &LogoutError{Source: source, Err: err}
}

// NewSession opens a fresh session. It returns false when the registry is
// full.
func (c *Console) NewSession() (session.Session, bool) {
	id := c.registry.Create()
	if id == "" {
		return session.Session{}, false
	}
	sess, ok := c.registry.Get(id)
	return sess, ok
}

// OpenExisting activates or opens the session bound to operationID and
// restores its workflow. It returns false when a new session is needed and
// the registry is full.
func (c *Console) OpenExisting(ctx context.Context, operationID string, hints session.Hints) (session.Session, *workflow.Workflow, bool, error) {
	id := c.registry.OpenExisting(operationID, hints)
	if id == "" {
		return session.Session{}, nil, false, nil
	}
	wf, err := c.Workflow(ctx, id)
	if err != nil {
		return session.Session{}, nil, true, err
	}
	sess, _ := c.registry.Get(id)
	return sess, wf, true, nil
}

// Active returns the active session and its workflow.
func (c *Console) Active(ctx context.Context) (session.Session, *workflow.Workflow, error) {
	id := c.registry.ActiveID()
	if id == "" {
		return session.Session{}, nil, services.Wrap(services.ErrNotFound, "", "active session", "no open session (run 'boletodesk session new')", nil)
	}
	wf, err := c.Workflow(ctx, id)
	if err != nil {
		return session.Session{}, nil, err
	}
	sess, _ := c.registry.Get(id)
	return sess, wf, nil
}

// Workflow returns the workflow of session id, restoring a bound session
// from the backend the first time it is requested.
func (c *Console) Workflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	c.mu.Lock()
	if wf, ok := c.workflows[id]; ok {
		c.mu.Unlock()
		return wf, nil
	}
	c.mu.Unlock()

	sess, ok := c.registry.Get(id)
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "", "session", "unknown session "+id, nil)
	}
	wf := workflow.New(sess, c.Client(),
		workflow.WithLogger(c.opts.logger),
		workflow.WithPreviewCache(grouping.NewCache(c.cfg.SessionPreviewDir(id), c.opts.logger)),
		workflow.WithHooks(workflow.Hooks{
			Changed: func(s workflow.State) { c.sync(id, s) },
			Closed:  func() { c.CloseSession(id) },
		}),
	)
	if sess.Bound() {
		if err := wf.Restore(ctx); err != nil {
			return nil, c.HandleError(err)
		}
	}
	c.mu.Lock()
	c.workflows[id] = wf
	c.mu.Unlock()
	return wf, nil
}

func (c *Console) sync(id string, s workflow.State) {
	c.registry.Update(id, session.Patch{
		OperationID:    &s.OperationID,
		OperationLabel: &s.Label,
		Stage:          &s.Stage,
		Fidc:           &session.Fidc{ID: s.Fidc.ID, Name: s.Fidc.Name, Color: s.Fidc.Color},
	})
}

// Activate moves the active pointer.
func (c *Console) Activate(id string) bool {
	return c.registry.Activate(id)
}

// CloseSession closes session id, discards responses still in flight for it
// and removes its preview mirror.
func (c *Console) CloseSession(id string) bool {
	if !c.registry.Close(id) {
		return false
	}
	c.mu.Lock()
	wf := c.workflows[id]
	delete(c.workflows, id)
	c.mu.Unlock()

	if wf != nil {
		wf.Detach()
		if err := wf.PreviewCache().Purge(); err != nil {
			c.logger.Debug("preview purge failed", logging.String(logging.FieldSessionID, id), logging.Error(err))
		}
	} else if err := os.RemoveAll(c.cfg.SessionPreviewDir(id)); err != nil {
		c.logger.Debug("preview purge failed", logging.String(logging.FieldSessionID, id), logging.Error(err))
	}
	c.logger.Info("session closed",
		logging.String(logging.FieldEventType, "session_closed"),
		logging.String(logging.FieldSessionID, id))
	return true
}

// Close settles background work, persists the registry, writes metrics and
// releases the lock.
func (c *Console) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	workflows := make([]*workflow.Workflow, 0, len(c.workflows))
	for _, wf := range c.workflows {
		workflows = append(workflows, wf)
	}
	c.mu.Unlock()

	for _, wf := range workflows {
		wf.Settle()
	}
	var errs []error
	if err := c.store.Save(ctx, c.registry.Snapshot()); err != nil {
		errs = append(errs, fmt.Errorf("save sessions: %w", err))
	}
	if path := c.cfg.Metrics.Textfile; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			errs = append(errs, fmt.Errorf("create metrics directory: %w", err))
		} else if err := c.Client().Metrics().WriteTextfile(path); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if err := c.release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Console) release() error {
	var errs []error
	if err := c.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if err := c.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("release lock: %w", err))
	}
	return errors.Join(errs...)
}
