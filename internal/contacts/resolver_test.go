package contacts

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/cesar59xxx/eeeeeeee/internal/store"
)

func testResolver(t *testing.T) *Resolver {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewResolver(db, zap.NewNop())
}

func TestResolveCreatesWithPhoneFallbackName(t *testing.T) {
	r := testResolver(t)

	c, err := r.Resolve(context.Background(), "t1", "s1", "5511999999999@s.whatsapp.net", nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.PeerID != "5511999999999" {
		t.Errorf("peer id = %q, want phone token", c.PeerID)
	}
	if c.Name != "5511999999999" {
		t.Errorf("name = %q, want phone fallback", c.Name)
	}
}

func TestResolveReturnsExisting(t *testing.T) {
	r := testResolver(t)

	first, err := r.Resolve(context.Background(), "t1", "s1", "5511999999999@s.whatsapp.net", nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Resolve(context.Background(), "t1", "s1", "5511999999999@s.whatsapp.net", nil)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("second resolve id = %d, want %d", second.ID, first.ID)
	}
}

func TestResolveScopedBySession(t *testing.T) {
	r := testResolver(t)

	a, _ := r.Resolve(context.Background(), "t1", "s1", "p@s", nil)
	b, _ := r.Resolve(context.Background(), "t1", "s2", "p@s", nil)
	if a.ID == b.ID {
		t.Error("same peer under different sessions should be distinct contacts")
	}
}

func TestResolveEnrichesOnCreation(t *testing.T) {
	r := testResolver(t)

	calls := 0
	fetch := func(ctx context.Context, peer string) (string, error) {
		calls++
		return "http://pic", nil
	}

	c, err := r.Resolve(context.Background(), "t1", "s1", "p@s", fetch)
	if err != nil {
		t.Fatal(err)
	}
	if c.AvatarURL != "http://pic" {
		t.Errorf("avatar = %q, want enriched url", c.AvatarURL)
	}

	// Existing contacts are not re-enriched.
	if _, err := r.Resolve(context.Background(), "t1", "s1", "p@s", fetch); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("fetcher called %d times, want 1", calls)
	}
}

func TestResolveEnrichmentFailureIsNotFatal(t *testing.T) {
	r := testResolver(t)

	fetch := func(ctx context.Context, peer string) (string, error) {
		return "", errors.New("profile lookup failed")
	}

	c, err := r.Resolve(context.Background(), "t1", "s1", "p@s", fetch)
	if err != nil {
		t.Fatalf("Resolve() error = %v, enrichment failure must be swallowed", err)
	}
	if c.AvatarURL != "" {
		t.Errorf("avatar = %q, want empty", c.AvatarURL)
	}
}

func TestTouchBumpsActivity(t *testing.T) {
	r := testResolver(t)
	c, err := r.Resolve(context.Background(), "t1", "s1", "p@s", nil)
	if err != nil {
		t.Fatal(err)
	}

	future := c.LastActivityAt + 10000
	if err := r.Touch(c.ID, future); err != nil {
		t.Fatal(err)
	}

	again, _ := r.Resolve(context.Background(), "t1", "s1", "p@s", nil)
	if again.LastActivityAt != future {
		t.Errorf("last activity = %d, want %d", again.LastActivityAt, future)
	}
}
