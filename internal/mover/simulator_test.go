package mover

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSimulator_LookupDeterministic(t *testing.T) {
	s := NewSimulator(SimulatorConfig{Seed: 1})
	a, _ := s.Lookup(context.Background(), "alice@contoso.com")
	b, _ := s.Lookup(context.Background(), "  ALICE@contoso.com ")
	if a != b {
		t.Errorf("lookups differ: %+v vs %+v", a, b)
	}
}

func TestSimulator_LookupMissing(t *testing.T) {
	s := NewSimulator(SimulatorConfig{Seed: 1})
	// existence follows the checksum
	for _, addr := range []string{"a@b.co", "ab@b.co", "abc@b.co", "abcd@b.co", "abcde@b.co", "abcdef@b.co", "abcdefg@b.co", "abcdefgh@b.co", "abcdefghi@b.co", "abcdefghij@b.co"} {
		info, err := s.Lookup(context.Background(), addr)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", addr, err)
		}
		if want := checksum(addr)%10 != 0; info.Exists != want {
			t.Errorf("Lookup(%s).Exists = %v, want %v", addr, info.Exists, want)
		}
		if info.Exists && (info.SizeMB < 0 || info.SizeMB >= 15000) {
			t.Errorf("Lookup(%s).SizeMB = %v out of range", addr, info.SizeMB)
		}
	}
}

func TestSimulator_MoveSucceeds(t *testing.T) {
	s := NewSimulator(SimulatorConfig{SuccessRate: 1, MinDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Seed: 7})
	res, err := s.Move(context.Background(), "a@old.com", "a@new.com")
	if err != nil {
		t.Fatalf("Move returned error: %v", err)
	}
	if res.ItemsMoved < 100 || res.ItemsMoved >= 5000 {
		t.Errorf("ItemsMoved = %d out of range", res.ItemsMoved)
	}
	if res.BytesMoved <= 0 {
		t.Errorf("BytesMoved = %d, want > 0", res.BytesMoved)
	}
}

func TestSimulator_MoveFails(t *testing.T) {
	s := NewSimulator(SimulatorConfig{SuccessRate: 1e-9, MinDelay: time.Millisecond, MaxDelay: time.Millisecond, Seed: 7})
	if _, err := s.Move(context.Background(), "a@old.com", "a@new.com"); err == nil {
		t.Fatal("Move should fail with near-zero success rate")
	}
}

func TestSimulator_MoveCancelled(t *testing.T) {
	s := NewSimulator(SimulatorConfig{SuccessRate: 1, MinDelay: time.Hour, MaxDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Move(ctx, "a@old.com", "a@new.com")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNewSimulator_Defaults(t *testing.T) {
	s := NewSimulator(SimulatorConfig{})
	if s.cfg.SuccessRate != 0.9 {
		t.Errorf("SuccessRate = %v, want 0.9", s.cfg.SuccessRate)
	}
	if s.cfg.MinDelay != 2*time.Second || s.cfg.MaxDelay != 6*time.Second {
		t.Errorf("delays = %v..%v, want 2s..6s", s.cfg.MinDelay, s.cfg.MaxDelay)
	}
}

func TestNew_Backends(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", Config{}, false},
		{"simulated", Config{Backend: "simulated"}, false},
		{"shell missing command", Config{Backend: "shell"}, true},
		{"http missing host", Config{Backend: "http"}, true},
		{"http", Config{Backend: "http", HTTP: Connection{Host: "mx.example.com"}}, false},
		{"imap missing addr", Config{Backend: "imap"}, true},
		{"imap", Config{Backend: "imap", IMAP: IMAPConfig{Addr: "mx:993"}}, false},
		{"unknown", Config{Backend: "exchange"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && m == nil {
				t.Fatal("New() returned nil mover")
			}
		})
	}
}
