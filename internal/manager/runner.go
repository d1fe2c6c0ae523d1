package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cesar59xxx/eeeeeeee/internal/bus"
	"github.com/cesar59xxx/eeeeeeee/internal/client"
	"github.com/cesar59xxx/eeeeeeee/internal/contacts"
	"github.com/cesar59xxx/eeeeeeee/internal/relay"
	"github.com/cesar59xxx/eeeeeeee/internal/state"
	"github.com/cesar59xxx/eeeeeeee/internal/store"
)

// runner drives one session's state machine. All lifecycle transitions and
// event dispatch for the session are serialized by its mutex; sessions never
// share locks with each other.
type runner struct {
	m        *Manager
	id       string
	tenantID string

	mu       sync.Mutex
	machine  *state.Machine
	cli      client.Client
	attempts int
	timer    *time.Timer
	closed   bool
}

func newRunner(m *Manager, sessionID, tenantID string, initial state.Status) *runner {
	return &runner{
		m:        m,
		id:       sessionID,
		tenantID: tenantID,
		machine:  state.NewMachine(initial),
	}
}

// bringUp allocates a client and begins asynchronous connection. Called from
// Start and from the reconnect timer.
func (r *runner) bringUp(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	if r.transitionLocked(state.Initializing) {
		r.m.persistStatus(r.id, state.Initializing, "")
		r.m.publishStatus(r.id, state.Initializing, nil)
	}
	r.mu.Unlock()

	cli, err := r.m.factory.New(ctx, r.id, r.handle)
	if err != nil {
		r.fail("client init: " + err.Error())
		return fmt.Errorf("create client: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cli.Stop()
		return nil
	}
	r.cli = cli
	r.mu.Unlock()

	go func() {
		if err := cli.Start(ctx); err != nil {
			r.fail("bring-up: " + err.Error())
		}
	}()
	return nil
}

// handle is the single dispatch point for everything the client observes.
// Failures here are logged and broadcast, never propagated: a broken
// callback must not take down the manager or the other sessions.
func (r *runner) handle(evt client.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	switch evt.Kind {
	case client.EventPairingCode:
		r.onPairing(evt.PairingCode)
	case client.EventAuthenticated:
		if r.transitionLocked(state.Authenticated) {
			r.m.persistStatus(r.id, state.Authenticated, "")
			r.m.publishStatus(r.id, state.Authenticated, nil)
		}
	case client.EventReady:
		r.onReady(evt.Identity)
	case client.EventAuthFailure:
		r.failLocked("auth failure: " + evt.Reason)
	case client.EventDisconnected:
		r.onDisconnected(evt.Reason)
	case client.EventMessage:
		r.onMessage(evt.Message)
	case client.EventAck:
		r.onAck(evt.Ack)
	}
}

func (r *runner) onPairing(code string) {
	// Fresh codes while already awaiting replace the payload without a
	// transition.
	if r.machine.Current() != state.AwaitingPairing && !r.transitionLocked(state.AwaitingPairing) {
		return
	}
	r.m.persistStatus(r.id, state.AwaitingPairing, code)
	r.m.bus.Publish(bus.Event{
		Kind:      KindPairing,
		SessionID: r.id,
		Global:    true,
		Timestamp: time.Now(),
		Payload:   PairingEvent{SessionID: r.id, Payload: code},
	})
}

func (r *runner) onReady(id client.Identity) {
	if !r.transitionLocked(state.Connected) {
		return
	}
	r.attempts = 0
	if err := r.m.db.UpdateSessionReconnectAttempts(r.id, 0); err != nil {
		r.m.logger.Warn("failed to reset reconnect counter", zap.String("session", r.id), zap.Error(err))
	}
	r.m.persistStatus(r.id, state.Connected, "")
	if err := r.m.db.UpdateSessionIdentity(r.id, id.PhoneNumber, id.AvatarURL); err != nil {
		r.m.logger.Warn("failed to persist identity", zap.String("session", r.id), zap.Error(err))
	}
	r.m.publishStatus(r.id, state.Connected, &Identity{PhoneNumber: id.PhoneNumber, AvatarURL: id.AvatarURL})
	r.m.logger.Info("session connected",
		zap.String("session", r.id),
		zap.String("phone", id.PhoneNumber))
}

func (r *runner) onDisconnected(reason string) {
	if r.machine.Current() == state.Disconnected {
		return
	}
	if !r.transitionLocked(state.Disconnected) {
		return
	}
	r.m.logger.Warn("session disconnected", zap.String("session", r.id), zap.String("reason", reason))

	// The handle is dead; only the runner (and its timer) survive.
	if r.cli != nil {
		r.cli.Stop()
		r.cli = nil
	}
	r.m.persistStatus(r.id, state.Disconnected, "")
	r.m.publishStatus(r.id, state.Disconnected, nil)

	s, err := r.m.db.GetSession(r.id)
	if err != nil || s == nil {
		r.m.logger.Error("cannot evaluate reconnect, session row unavailable", zap.String("session", r.id), zap.Error(err))
		return
	}
	if !s.IsActive {
		r.closed = true
		r.m.deregister(r.id)
		return
	}
	if r.attempts >= r.m.opts.MaxReconnectAttempts {
		r.m.logger.Warn("reconnect attempts exhausted", zap.String("session", r.id), zap.Int("attempts", r.attempts))
		r.failLocked("reconnect attempts exhausted")
		return
	}
	r.timer = time.AfterFunc(r.m.opts.ReconnectDelay, r.reconnect)
}

func (r *runner) reconnect() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.attempts++
	if err := r.m.db.UpdateSessionReconnectAttempts(r.id, r.attempts); err != nil {
		r.m.logger.Warn("failed to persist reconnect counter", zap.String("session", r.id), zap.Error(err))
	}
	r.m.logger.Info("reconnecting session",
		zap.String("session", r.id),
		zap.Int("attempt", r.attempts))
	if r.transitionLocked(state.Reconnecting) {
		r.m.persistStatus(r.id, state.Reconnecting, "")
		r.m.publishStatus(r.id, state.Reconnecting, nil)
	}
	r.mu.Unlock()

	if err := r.bringUp(context.Background()); err != nil {
		r.m.logger.Error("reconnect failed", zap.String("session", r.id), zap.Error(err))
	}
}

func (r *runner) onMessage(msg *client.IncomingMessage) {
	contact, err := r.m.resolver.Resolve(context.Background(), r.tenantID, r.id, msg.PeerAddress, r.profileFetcher())
	if err != nil {
		r.m.logger.Error("failed to resolve contact", zap.String("session", r.id), zap.Error(err))
		return
	}

	direction := store.DirectionInbound
	status := relay.StatusReceived
	if msg.FromMe {
		direction = store.DirectionOutbound
		status = relay.StatusSent
	}

	stored, created, err := r.m.relay.Record(&store.Message{
		SessionID:     r.id,
		ContactID:     contact.ID,
		ProviderMsgID: msg.ProviderMsgID,
		Direction:     direction,
		Body:          msg.Body,
		MediaURL:      msg.MediaURL,
		MediaType:     msg.MediaType,
		Status:        status,
		Timestamp:     msg.Timestamp.UnixMilli(),
	})
	if err != nil {
		r.m.logger.Error("failed to record message", zap.String("session", r.id), zap.Error(err))
		return
	}
	if !created {
		return
	}

	if err := r.m.resolver.Touch(contact.ID, stored.Timestamp); err != nil {
		r.m.logger.Warn("failed to touch contact", zap.Int64("contact", contact.ID), zap.Error(err))
	}
	contact.LastActivityAt = stored.Timestamp

	r.m.bus.Publish(bus.Event{
		Kind:      KindMessage,
		SessionID: r.id,
		Timestamp: time.Now(),
		Payload: MessageEvent{
			SessionID: r.id,
			Message:   MessageToView(stored),
			Contact:   ContactToView(contact),
		},
	})
}

func (r *runner) onAck(ack *client.Ack) {
	status := relay.AckStatus(ack.Code)
	updated, changed, err := r.m.relay.UpdateStatus(r.id, ack.ProviderMsgID, status)
	if err != nil {
		if errors.Is(err, relay.ErrMessageNotFound) {
			r.m.logger.Debug("ack for unknown message", zap.String("provider_msg_id", ack.ProviderMsgID))
		} else {
			r.m.logger.Error("failed to update message status", zap.Error(err))
		}
		return
	}
	if !changed {
		return
	}
	r.m.bus.Publish(bus.Event{
		Kind:      KindMessageStatus,
		SessionID: r.id,
		Timestamp: time.Now(),
		Payload: MessageStatusEvent{
			SessionID:     r.id,
			ProviderMsgID: updated.ProviderMsgID,
			Status:        updated.Status,
		},
	})
}

// send dispatches a message. Serialized with event dispatch for this session.
func (r *runner) send(ctx context.Context, peerAddress, body string) (*store.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.cli == nil || r.machine.Current() != state.Connected {
		return nil, fmt.Errorf("%w: session is %s", ErrNotConnected, r.machine.Current())
	}

	providerID, err := r.cli.SendText(ctx, peerAddress, body)
	if err != nil {
		// Dispatch failed: surface to the caller, no message row.
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	contact, err := r.m.resolver.Resolve(ctx, r.tenantID, r.id, peerAddress, r.profileFetcher())
	if err != nil {
		return nil, fmt.Errorf("resolve contact: %w", err)
	}

	now := time.Now()
	stored, _, err := r.m.relay.Record(&store.Message{
		SessionID:     r.id,
		ContactID:     contact.ID,
		ProviderMsgID: providerID,
		Direction:     store.DirectionOutbound,
		Body:          body,
		Status:        relay.StatusSent,
		Timestamp:     now.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("record message: %w", err)
	}
	if err := r.m.resolver.Touch(contact.ID, stored.Timestamp); err != nil {
		r.m.logger.Warn("failed to touch contact", zap.Int64("contact", contact.ID), zap.Error(err))
	}
	contact.LastActivityAt = stored.Timestamp

	r.m.bus.Publish(bus.Event{
		Kind:      KindMessage,
		SessionID: r.id,
		Timestamp: now,
		Payload: MessageEvent{
			SessionID: r.id,
			Message:   MessageToView(stored),
			Contact:   ContactToView(contact),
		},
	})
	return stored, nil
}

// profileFetcher exposes the live client's avatar lookup to the resolver,
// or nil when no handle exists.
func (r *runner) profileFetcher() contacts.ProfileFetcher {
	cli := r.cli
	if cli == nil {
		return nil
	}
	return cli.ProfilePicture
}

// fail records an error status with its cause, tears down the handle and
// deregisters the runner. An explicit start is required afterwards.
func (r *runner) fail(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failLocked(reason)
}

func (r *runner) failLocked(reason string) {
	r.m.logger.Error("session failed", zap.String("session", r.id), zap.String("reason", reason))
	r.stopTimerLocked()
	if r.cli != nil {
		r.cli.Stop()
		r.cli = nil
	}
	if r.transitionLocked(state.Error) {
		if err := r.m.db.UpdateSessionError(r.id, reason); err != nil {
			r.m.logger.Error("failed to persist error status", zap.String("session", r.id), zap.Error(err))
		}
		r.m.publishStatus(r.id, state.Error, nil)
	}
	r.closed = true
	// Safe while holding r.mu: no caller acquires a runner mutex under the
	// registry mutex.
	r.m.deregister(r.id)
}

// shutdown gracefully tears the runner down without marking an error.
func (r *runner) shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.stopTimerLocked()
	if r.cli != nil {
		r.cli.Stop()
		r.cli = nil
	}
	if r.transitionLocked(state.Disconnected) {
		r.m.persistStatus(r.id, state.Disconnected, "")
		r.m.publishStatus(r.id, state.Disconnected, nil)
	}
}

// logout invalidates stored credentials, best-effort.
func (r *runner) logout(ctx context.Context) {
	r.mu.Lock()
	cli := r.cli
	r.mu.Unlock()
	if cli == nil {
		return
	}
	if err := cli.Logout(ctx); err != nil {
		r.m.logger.Warn("logout failed", zap.String("session", r.id), zap.Error(err))
	}
}

func (r *runner) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *runner) transitionLocked(to state.Status) bool {
	if err := r.machine.Transition(to); err != nil {
		r.m.logger.Debug("ignored transition",
			zap.String("session", r.id),
			zap.String("to", string(to)),
			zap.Error(err))
		return false
	}
	return true
}
