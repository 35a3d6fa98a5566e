package mover

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"
)

func newShellMover(t *testing.T, lookup, move string) *ShellMover {
	t.Helper()
	m, err := NewShellMover(ShellConfig{
		Command:    "/bin/sh",
		LookupArgs: []string{"-c", lookup, "lookup", "{identity}"},
		MoveArgs:   []string{"-c", move, "move", "{source}", "{target}"},
		Timeout:    5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewShellMover: %v", err)
	}
	return m
}

func TestShellMover_Lookup(t *testing.T) {
	m := newShellMover(t,
		`case "$1" in a@b.com) echo '{"exists":true,"size_mb":12.5}';; *) echo '{"exists":false}';; esac`,
		`true`)

	got, err := m.Lookup(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !got.Exists || got.SizeMB != 12.5 {
		t.Errorf("Lookup = %+v", got)
	}
	got, err = m.Lookup(context.Background(), "x@b.com")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Exists {
		t.Errorf("Lookup(x@b.com).Exists = true, want false")
	}
}

func TestShellMover_Move(t *testing.T) {
	m := newShellMover(t, `true`,
		`[ "$1" = a@old.com ] && [ "$2" = a@new.com ] && echo '{"items_moved":3,"bytes_moved":300}'`)

	res, err := m.Move(context.Background(), "a@old.com", "a@new.com")
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if res.ItemsMoved != 3 || res.BytesMoved != 300 {
		t.Errorf("Move = %+v", res)
	}
}

func TestShellMover_MoveFailureIncludesStderr(t *testing.T) {
	m := newShellMover(t, `true`, `echo 'quota exceeded' >&2; exit 3`)

	_, err := m.Move(context.Background(), "a@old.com", "a@new.com")
	if err == nil {
		t.Fatal("Move should fail")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error %q should contain stderr", err)
	}
}

func TestShellMover_BadOutput(t *testing.T) {
	m := newShellMover(t, `echo not-json`, `true`)
	if _, err := m.Lookup(context.Background(), "a@b.com"); err == nil {
		t.Fatal("Lookup should fail on non-JSON output")
	}
}

func TestExpandArgs(t *testing.T) {
	got := expandArgs([]string{"-Identity", "{source}", "--to={target}"}, map[string]string{
		"{source}": "a@old.com",
		"{target}": "a@new.com",
	})
	want := []string{"-Identity", "a@old.com", "--to=a@new.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expandArgs = %v, want %v", got, want)
	}
}

func TestNewShellMover_Validation(t *testing.T) {
	if _, err := NewShellMover(ShellConfig{}); err == nil {
		t.Error("expected error without command")
	}
	if _, err := NewShellMover(ShellConfig{Command: "x"}); err == nil {
		t.Error("expected error without args")
	}
}
