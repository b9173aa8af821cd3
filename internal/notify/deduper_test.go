package notify

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"estatecron/internal/clock"
	"estatecron/internal/domain"
	"estatecron/internal/storage"
	logx "estatecron/pkg/logx"
)

func newDeduper(t *testing.T, clk clock.Clock) (*Deduper, *storage.Store) {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "n.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewDeduper(st, Options{Clock: clk}), st
}

func TestHasRecentWindow(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC))
	d, _ := newDeduper(t, clk)

	has, err := d.HasRecent(ctx, "u1", domain.NotificationEliteExpiryWarning, 24*time.Hour)
	if err != nil || has {
		t.Fatalf("empty ledger HasRecent = %v, %v", has, err)
	}
	inserted, err := d.Record(ctx, "u1", domain.NotificationEliteExpiryWarning, map[string]any{"days": 2})
	if err != nil || !inserted {
		t.Fatalf("Record = %v, %v", inserted, err)
	}

	clk.Advance(23 * time.Hour)
	if has, _ := d.HasRecent(ctx, "u1", domain.NotificationEliteExpiryWarning, 24*time.Hour); !has {
		t.Fatal("expected notification inside 24h window")
	}
	if has, _ := d.HasRecent(ctx, "u2", domain.NotificationEliteExpiryWarning, 24*time.Hour); has {
		t.Fatal("other user must not be affected")
	}

	clk.Advance(2 * time.Hour)
	if has, _ := d.HasRecent(ctx, "u1", domain.NotificationEliteExpiryWarning, 24*time.Hour); has {
		t.Fatal("notification outside window still reported")
	}
}

func TestRecordSuppressedSameDay(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2026, 10, 16, 1, 0, 0, 0, time.UTC))
	d, st := newDeduper(t, clk)

	if ok, err := d.Record(ctx, "u1", domain.NotificationEliteExpiryWarning, map[string]int{"n": 1}); err != nil || !ok {
		t.Fatalf("first Record = %v, %v", ok, err)
	}
	clk.Advance(3 * time.Hour)
	if ok, err := d.Record(ctx, "u1", domain.NotificationEliteExpiryWarning, map[string]int{"n": 2}); err != nil || ok {
		t.Fatalf("second Record = %v, %v; want suppressed", ok, err)
	}

	list, err := st.ListNotifications(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(list))
	}
	var payload map[string]int
	if err := json.Unmarshal(list[0].Payload, &payload); err != nil || payload["n"] != 1 {
		t.Fatalf("payload = %s (%v)", list[0].Payload, err)
	}
}

func TestRecordHonoursCancelledContext(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 10, 16, 1, 0, 0, 0, time.UTC))
	st := &countingStore{}
	d := NewDeduper(st, Options{Clock: clk, RatePerSec: 0.001})

	ctx, cancel := context.WithCancel(context.Background())
	// The first token is available immediately; the second would block.
	if _, err := d.Record(ctx, "u1", domain.NotificationEliteExpiryWarning, nil); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	cancel()
	if _, err := d.Record(ctx, "u2", domain.NotificationEliteExpiryWarning, nil); err == nil {
		t.Fatal("expected error from paced Record with cancelled context")
	}
	if st.inserts != 1 {
		t.Fatalf("inserts = %d, want 1", st.inserts)
	}
}

type countingStore struct{ inserts int }

func (c *countingStore) HasNotificationSince(context.Context, string, domain.NotificationType, time.Time) (bool, error) {
	return false, nil
}

func (c *countingStore) InsertNotification(context.Context, domain.Notification) (bool, error) {
	c.inserts++
	return true, nil
}
