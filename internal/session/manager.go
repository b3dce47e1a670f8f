// Package session owns signed-in users and their appointment caches.
//
// A session is created by a successful sign-in or sign-up and ends with
// sign-out or when its record expires. Each live session has exactly one
// reconcile.Cache; caches are kept in a bounded LRU and a cache evicted from
// it is destroyed and rebuilt from scratch on the next access.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-appointment-client/internal/appointment"
	"github.com/hackgods/clinic-appointment-client/internal/logger"
	"github.com/hackgods/clinic-appointment-client/internal/reconcile"
)

// Remote is what sessions need from the clinic backend: authentication plus
// everything the cache reads and writes.
type Remote interface {
	reconcile.Remote
	SignIn(ctx context.Context, creds appointment.Credentials) (*appointment.User, error)
	SignUp(ctx context.Context, reg appointment.Registration) (*appointment.User, error)
}

type Session struct {
	Record
	Cache *reconcile.Cache
}

type Manager struct {
	remote    Remote
	store     Store
	ttl       time.Duration
	cacheOpts []reconcile.Option
	log       *logrus.Entry
	now       func() time.Time

	mu     sync.Mutex
	caches *lru.Cache[uuid.UUID, *reconcile.Cache]
}

type Option func(*managerOptions)

type managerOptions struct {
	ttl       time.Duration
	size      int
	cacheOpts []reconcile.Option
	log       *logrus.Entry
}

func WithTTL(ttl time.Duration) Option {
	return func(o *managerOptions) { o.ttl = ttl }
}

// WithCacheSize bounds how many sessions keep a live cache.
func WithCacheSize(n int) Option {
	return func(o *managerOptions) { o.size = n }
}

func WithCacheOptions(opts ...reconcile.Option) Option {
	return func(o *managerOptions) { o.cacheOpts = append(o.cacheOpts, opts...) }
}

func WithLogger(l *logrus.Entry) Option {
	return func(o *managerOptions) { o.log = l }
}

func NewManager(r Remote, store Store, opts ...Option) (*Manager, error) {
	o := managerOptions{ttl: 12 * time.Hour, size: 256, log: logger.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Manager{
		remote:    r,
		store:     store,
		ttl:       o.ttl,
		cacheOpts: o.cacheOpts,
		log:       o.log,
		now:       time.Now,
	}

	caches, err := lru.NewWithEvict(o.size, func(id uuid.UUID, c *reconcile.Cache) {
		c.Destroy()
		m.log.WithField("session_id", id).Debug("session cache destroyed")
	})
	if err != nil {
		return nil, fmt.Errorf("create session cache registry: %w", err)
	}
	m.caches = caches
	return m, nil
}

func (m *Manager) SignIn(ctx context.Context, creds appointment.Credentials) (*Session, error) {
	user, err := m.remote.SignIn(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	return m.start(ctx, *user)
}

func (m *Manager) SignUp(ctx context.Context, reg appointment.Registration) (*Session, error) {
	user, err := m.remote.SignUp(ctx, reg)
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	return m.start(ctx, *user)
}

func (m *Manager) start(ctx context.Context, user appointment.User) (*Session, error) {
	rec := Record{
		ID:        uuid.New(),
		Token:     uuid.NewString(),
		User:      user,
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.Save(ctx, rec, m.ttl); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	cache := m.attach(rec.ID)
	m.log.WithFields(logrus.Fields{
		"session_id": rec.ID,
		"user_id":    user.ID,
		"role":       user.Role,
	}).Info("session started")

	return &Session{Record: rec, Cache: cache}, nil
}

// Get returns the session with id, rebuilding its cache when it has none.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	rec, err := m.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			m.caches.Remove(id)
		}
		return nil, err
	}
	return &Session{Record: rec, Cache: m.attach(id)}, nil
}

// attach returns the live cache for id, creating and loading one if needed.
func (m *Manager) attach(id uuid.UUID) *reconcile.Cache {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.caches.Get(id); ok {
		return c
	}

	opts := append([]reconcile.Option{
		reconcile.WithLogger(m.log.WithField("session_id", id)),
	}, m.cacheOpts...)
	c := reconcile.New(m.remote, opts...)
	c.Load()
	m.caches.Add(id, c)
	return c
}

// SignOut ends the session if token matches and destroys its cache.
func (m *Manager) SignOut(ctx context.Context, id uuid.UUID, token string) error {
	removed, err := m.store.Delete(ctx, id, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if !removed {
		return ErrSessionNotFound
	}
	m.caches.Remove(id)
	m.log.WithField("session_id", id).Info("session ended")
	return nil
}

// Live returns how many sessions have a cache in memory.
func (m *Manager) Live() int {
	return m.caches.Len()
}

// Close destroys every live cache.
func (m *Manager) Close() {
	m.caches.Purge()
}
