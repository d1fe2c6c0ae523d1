// Package contacts maps raw peer addresses to durable contact records.
package contacts

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cesar59xxx/eeeeeeee/internal/client"
	"github.com/cesar59xxx/eeeeeeee/internal/store"
)

// ProfileFetcher looks up a peer's avatar URL. Best-effort; failures are
// swallowed by the resolver.
type ProfileFetcher func(ctx context.Context, peerAddress string) (string, error)

// Resolver returns an existing contact for a (tenant, session, peer) triple
// or atomically creates one. Concurrent resolutions converge on a single row
// via the store's uniqueness constraint.
type Resolver struct {
	db     *store.DB
	logger *zap.Logger
}

// NewResolver creates a contact resolver.
func NewResolver(db *store.DB, logger *zap.Logger) *Resolver {
	return &Resolver{db: db, logger: logger}
}

// Resolve returns the contact for the given peer, creating it on first
// contact. The display name falls back to the phone token extracted from the
// address. enrich, when non-nil, is attempted once per creation; its failure
// or absence of a picture is not an error.
func (r *Resolver) Resolve(ctx context.Context, tenantID, sessionID, peerAddress string, enrich ProfileFetcher) (*store.Contact, error) {
	peerID := client.PeerToken(peerAddress)

	existing, err := r.db.GetContact(tenantID, sessionID, peerID)
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	created, err := r.db.InsertContact(&store.Contact{
		TenantID:  tenantID,
		SessionID: sessionID,
		PeerID:    peerID,
		Name:      peerID,
	})
	if err != nil {
		// Lost the uniqueness race to a concurrent resolution; the stored
		// row wins.
		existing, fetchErr := r.db.GetContact(tenantID, sessionID, peerID)
		if fetchErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("insert contact: %w", err)
	}

	if enrich != nil {
		if url, err := enrich(ctx, peerAddress); err == nil && url != "" {
			if err := r.db.UpdateContactProfile(created.ID, "", url); err == nil {
				created.AvatarURL = url
			}
		} else if err != nil {
			r.logger.Debug("contact enrichment failed",
				zap.String("peer", peerID), zap.Error(err))
		}
	}

	return created, nil
}

// Touch bumps the contact's last-activity timestamp.
func (r *Resolver) Touch(contactID int64, at int64) error {
	return r.db.TouchContact(contactID, at)
}
