package secretseed

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func seedFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secretseed")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTakeConsumesFromTailAndTruncates(t *testing.T) {
	path := seedFile(t, []byte("0123456789"))
	p := New(path, 0, 0)

	got, err := p.Take(4)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("6789")) {
		t.Fatalf("Take(4) = %q, want the last 4 bytes", got)
	}

	remaining, err := p.Remaining()
	if err != nil {
		t.Fatal(err)
	}
	if remaining != 6 {
		t.Fatalf("Remaining() after Take = %d, want 6", remaining)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "012345" {
		t.Fatalf("pool file = %q, want the first 6 bytes left behind", data)
	}
}

func TestTakeNeverReturnsTheSameBytesTwice(t *testing.T) {
	path := seedFile(t, []byte("abcdefgh"))
	p := New(path, 0, 0)

	first, err := p.Take(4)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Take(4)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(first, second) {
		t.Fatal("two successive Take calls returned the same bytes")
	}
}

func TestTakeEnforcesLowWater(t *testing.T) {
	path := seedFile(t, []byte("0123456789"))
	p := New(path, 8, 0)

	if _, err := p.Take(4); err != ErrLowWater {
		t.Fatalf("Take(4) with lowWater=8 on a 10-byte pool = %v, want ErrLowWater", err)
	}
}

func TestTakeRejectsInsufficientBytes(t *testing.T) {
	path := seedFile(t, []byte("ab"))
	p := New(path, 0, 0)

	if _, err := p.Take(4); err != ErrLowWater {
		t.Fatalf("Take(4) on a 2-byte pool = %v, want ErrLowWater", err)
	}
}

func TestBelowWarnLevel(t *testing.T) {
	path := seedFile(t, []byte("01234"))
	p := New(path, 0, 10)

	below, err := p.BelowWarnLevel()
	if err != nil {
		t.Fatal(err)
	}
	if !below {
		t.Fatal("BelowWarnLevel() = false, want true for a 5-byte pool with warnLevel=10")
	}
}

func TestRefillAppendsBytes(t *testing.T) {
	path := seedFile(t, []byte("ab"))
	p := New(path, 0, 0)

	if err := p.Refill([]byte("cd")); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "abcd" {
		t.Fatalf("pool file after Refill = %q, want \"abcd\"", data)
	}
}

func TestRemainingOnMissingFileIsZero(t *testing.T) {
	p := New(filepath.Join(t.TempDir(), "does-not-exist"), 0, 0)
	n, err := p.Remaining()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("Remaining() on missing file = %d, want 0", n)
	}
}
