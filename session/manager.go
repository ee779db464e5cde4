package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"formatconv/contracts"
	"formatconv/feedback"
	"formatconv/logger"
	"formatconv/publisher"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

type ManagerConfig struct {
	Dispatcher  Dispatcher
	Store       publisher.Store
	MaxFileSize int64
	TTL         time.Duration
	Now         func() time.Time
}

// Manager owns every live session and expires the ones left idle.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      ManagerConfig
	cron     *cron.Cron
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	return &Manager{sessions: make(map[string]*Session), cfg: cfg}
}

func (m *Manager) Create(kind contracts.Kind) (*Session, error) {
	s, err := New(uuid.NewString(), kind, Deps{
		Dispatcher:  m.cfg.Dispatcher,
		Publisher:   publisher.New(m.cfg.Store, nil),
		Reporter:    feedback.NewRecorder(feedback.DefaultToastHistory),
		MaxFileSize: m.cfg.MaxFileSize,
		Now:         m.cfg.Now,
	})
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep expires, resets and forgets sessions idle for longer than the TTL.
// Sessions with a conversion in flight are kept.
func (m *Manager) Sweep(ctx context.Context) int {
	cutoff := m.cfg.Now().Add(-m.cfg.TTL)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.expireIfIdle(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		if err := s.Reset(ctx); err != nil {
			logger.Warn(ctx, "expired session reset failed", logger.Fields{"session_id": s.ID, "error": err.Error()})
		}
	}
	if len(expired) > 0 {
		logger.Info(ctx, "expired sessions removed", logger.Fields{"count": len(expired), "remaining": m.Len()})
	}
	return len(expired)
}

// Start runs Sweep on a cron schedule such as "@every 1m".
func (m *Manager) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { m.Sweep(context.Background()) }); err != nil {
		return fmt.Errorf("sweep schedule %q: %w", schedule, err)
	}
	m.cron = c
	c.Start()
	return nil
}

// Stop halts the sweeper and revokes every session's results.
func (m *Manager) Stop(ctx context.Context) {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.publisher.Clear(ctx)
	}
}
