package checkout

import (
	"testing"
	"time"
)

func TestDraftStore_PutGetDelete(t *testing.T) {
	s := NewDraftStore(time.Hour)
	s.Put(&Draft{GatewayOrderID: "gw_1", AmountPaise: 100})

	d, ok := s.Get("gw_1")
	if !ok || d.AmountPaise != 100 {
		t.Fatalf("draft not found after Put")
	}
	if _, ok := s.Get("gw_2"); ok {
		t.Fatal("unknown draft found")
	}

	s.Delete("gw_1")
	if _, ok := s.Get("gw_1"); ok {
		t.Fatal("draft found after Delete")
	}
}

func TestDraftStore_TTLExpiry(t *testing.T) {
	s := NewDraftStore(10 * time.Millisecond)
	s.Put(&Draft{GatewayOrderID: "gw_1"})

	time.Sleep(20 * time.Millisecond)
	if _, ok := s.Get("gw_1"); ok {
		t.Fatal("expired draft still visible")
	}
	if stale := s.Stale(0); len(stale) != 0 {
		t.Fatalf("expired draft still reported stale: %d", len(stale))
	}
}

func TestDraftStore_Stale(t *testing.T) {
	s := NewDraftStore(time.Hour)
	s.Put(&Draft{GatewayOrderID: "gw_old"})

	if got := s.Stale(time.Minute); len(got) != 0 {
		t.Fatalf("fresh draft reported stale")
	}
	if got := s.Stale(0); len(got) != 1 || got[0].GatewayOrderID != "gw_old" {
		t.Fatalf("stale draft missing: %+v", got)
	}

	// Failed drafts are never reconciled.
	if !s.MarkFailed("gw_old") {
		t.Fatal("MarkFailed on existing draft returned false")
	}
	if got := s.Stale(0); len(got) != 0 {
		t.Fatalf("failed draft reported stale")
	}
	if s.MarkFailed("gw_missing") {
		t.Fatal("MarkFailed on missing draft returned true")
	}
}
