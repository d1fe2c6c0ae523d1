// Package manager owns the lifecycle of every active session: bring-up,
// pairing, readiness, message intake, bounded reconnection and teardown.
// It is the sole writer-of-record for a session's store rows and broadcasts.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cesar59xxx/eeeeeeee/internal/bus"
	"github.com/cesar59xxx/eeeeeeee/internal/client"
	"github.com/cesar59xxx/eeeeeeee/internal/contacts"
	"github.com/cesar59xxx/eeeeeeee/internal/relay"
	"github.com/cesar59xxx/eeeeeeee/internal/state"
	"github.com/cesar59xxx/eeeeeeee/internal/store"
)

// Typed errors surfaced to callers of user-invoked operations.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotConnected    = errors.New("session not connected")
)

// Bus event kinds published by the manager. The websocket hub maps them to
// the stable wire names the dashboard consumes.
const (
	KindPairing       = "session.pairing_payload"
	KindStatusChanged = "session.status_changed"
	KindMessage       = "message.received"
	KindMessageStatus = "message.status_changed"
)

// Options configures the reconnect policy.
type Options struct {
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// Manager maintains the registry of active automation clients and drives
// each through its state machine, independent of the others.
type Manager struct {
	db       *store.DB
	resolver *contacts.Resolver
	relay    *relay.Relay
	bus      *bus.Bus
	factory  client.Factory
	logger   *zap.Logger
	opts     Options

	mu      sync.Mutex
	runners map[string]*runner
}

// New creates a lifecycle manager.
func New(db *store.DB, resolver *contacts.Resolver, rl *relay.Relay, b *bus.Bus, factory client.Factory, logger *zap.Logger, opts Options) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 5
	}
	return &Manager{
		db:       db,
		resolver: resolver,
		relay:    rl,
		bus:      b,
		factory:  factory,
		logger:   logger,
		opts:     opts,
		runners:  make(map[string]*runner),
	}
}

// Create persists a new session in the created status. No client is opened
// until Start.
func (m *Manager) Create(tenantID, name string) (*store.Session, error) {
	s := &store.Session{
		ID:                   uuid.New().String(),
		TenantID:             tenantID,
		Name:                 name,
		Status:               string(state.Created),
		MaxReconnectAttempts: m.opts.MaxReconnectAttempts,
	}
	if err := m.db.InsertSession(s); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	m.publishStatus(s.ID, state.Created, nil)
	return s, nil
}

// Start allocates a client for the session and begins asynchronous bring-up.
// Idempotent: starting a session that already has a live handle is a no-op.
// An explicit start resets the reconnect attempt counter.
func (m *Manager) Start(ctx context.Context, sessionID string) error {
	s, err := m.db.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return ErrSessionNotFound
	}

	m.mu.Lock()
	if _, ok := m.runners[sessionID]; ok {
		m.mu.Unlock()
		m.logger.Info("session already active", zap.String("session", sessionID))
		return nil
	}
	r := newRunner(m, sessionID, s.TenantID, state.Resting(state.Canonical(s.Status)))
	m.runners[sessionID] = r
	m.mu.Unlock()

	if err := m.db.UpdateSessionActive(sessionID, true); err != nil {
		m.logger.Warn("failed to mark session active", zap.String("session", sessionID), zap.Error(err))
	}
	if err := m.db.UpdateSessionReconnectAttempts(sessionID, 0); err != nil {
		m.logger.Warn("failed to reset reconnect counter", zap.String("session", sessionID), zap.Error(err))
	}

	if err := r.bringUp(ctx); err != nil {
		m.deregister(sessionID)
		return err
	}
	return nil
}

// Stop tears down the session's client and marks it inactive. The durable
// row is kept.
func (m *Manager) Stop(sessionID string) error {
	s, err := m.db.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return ErrSessionNotFound
	}

	if r := m.deregister(sessionID); r != nil {
		r.shutdown()
	}
	if err := m.db.UpdateSessionActive(sessionID, false); err != nil {
		m.logger.Warn("failed to mark session inactive", zap.String("session", sessionID), zap.Error(err))
	}
	return nil
}

// Delete destroys the in-memory handle, invalidates credentials best-effort,
// and removes the session row with its contacts and messages.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	s, err := m.db.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return ErrSessionNotFound
	}

	if r := m.deregister(sessionID); r != nil {
		r.logout(ctx)
		r.shutdown()
	}
	if err := m.db.DeleteSession(sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	m.publishStatus(sessionID, state.Removed, nil)
	return nil
}

// Send dispatches a text message through the session's client. Requires a
// live handle in the connected status; on dispatch failure no message row is
// created. On success the outbound message is persisted optimistically as
// sent and broadcast like an inbound one.
func (m *Manager) Send(ctx context.Context, sessionID, peerAddress, body string) (*store.Message, error) {
	m.mu.Lock()
	r, ok := m.runners[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotConnected
	}
	return r.send(ctx, peerAddress, body)
}

// Status returns the durable projection of the session, the same canonical
// state the push path writes.
func (m *Manager) Status(sessionID string) (*store.Session, error) {
	s, err := m.db.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List returns all sessions owned by a tenant.
func (m *Manager) List(tenantID string) ([]store.Session, error) {
	return m.db.ListSessionsByTenant(tenantID)
}

// Contacts returns a session's contacts, most recently active first.
func (m *Manager) Contacts(sessionID string, limit int) ([]store.Contact, error) {
	return m.db.ListContactsBySession(sessionID, limit)
}

// Messages returns a contact's message history, paginated by row id.
func (m *Manager) Messages(sessionID string, contactID, beforeID int64, limit int) ([]store.Message, error) {
	return m.db.ListMessages(sessionID, contactID, beforeID, limit)
}

// ResumeActive restarts every session that was active when the daemon last
// stopped, so restarts recover live connections without user action.
func (m *Manager) ResumeActive(ctx context.Context) {
	sessions, err := m.db.ListActiveSessions()
	if err != nil {
		m.logger.Error("failed to list active sessions", zap.Error(err))
		return
	}
	for _, s := range sessions {
		if err := m.Start(ctx, s.ID); err != nil {
			m.logger.Error("failed to resume session", zap.String("session", s.ID), zap.Error(err))
		}
	}
}

// Shutdown stops all runners, persisting their sessions as disconnected but
// leaving them active so the next daemon start resumes them.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	runners := make([]*runner, 0, len(m.runners))
	for _, r := range m.runners {
		runners = append(runners, r)
	}
	m.runners = make(map[string]*runner)
	m.mu.Unlock()

	for _, r := range runners {
		r.shutdown()
	}
}

func (m *Manager) deregister(sessionID string) *runner {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runners[sessionID]
	if !ok {
		return nil
	}
	delete(m.runners, sessionID)
	return r
}

// persistStatus writes the durable status projection. A store failure is
// logged but never tears down the live connection: losing a pairing is more
// costly than a delayed write.
func (m *Manager) persistStatus(sessionID string, st state.Status, qr string) {
	if err := m.db.UpdateSessionStatus(sessionID, st, qr); err != nil {
		m.logger.Error("failed to persist session status",
			zap.String("session", sessionID),
			zap.String("status", string(st)),
			zap.Error(err))
	}
}

func (m *Manager) publishStatus(sessionID string, st state.Status, identity *Identity) {
	m.bus.Publish(bus.Event{
		Kind:      KindStatusChanged,
		SessionID: sessionID,
		Global:    true,
		Timestamp: time.Now(),
		Payload:   StatusEvent{SessionID: sessionID, Status: string(st), Identity: identity},
	})
}
