package itemstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStatusLineEncodeDecodeRoundTrip(t *testing.T) {
	s := StatusLine{Sequence: 0x2A}
	enc, err := Encode(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(enc) != 36 {
		t.Fatalf("StatusLineLen = %d, want 36", len(enc))
	}
	if enc[len(enc)-1] != '\n' {
		t.Fatal("status line does not end in a newline")
	}
	got, err := Decode(enc[:])
	if err != nil {
		t.Fatal(err)
	}
	if got != s {
		t.Fatalf("round trip = %+v, want %+v", got, s)
	}
}

func TestStatusLineContinuedInField(t *testing.T) {
	s := StatusLine{ContinuedIn: "B0123456", Sequence: 5}
	enc, err := Encode(s)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(enc[:])
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsContinued() || got.ContinuedIn != "B0123456" {
		t.Fatalf("decoded %+v, want continued-in B0123456", got)
	}
}

func TestNewAndOpenForReply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "A0010304")
	if err := New(path, 1, 1000, []string{"Item: test", "Subject: hello"}, []string{"body line"}); err != nil {
		t.Fatal(err)
	}

	var status StatusLine
	err := WithWriteLock(path, func(f *os.File) error {
		var err error
		status, _, err = OpenForReply(f, 50)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if status.IsContinued() {
		t.Fatal("freshly created item reports as continued")
	}
}

func TestOpenForReplyRejectsContinuedItem(t *testing.T) {
	path := filepath.Join(t.TempDir(), "A0010304")
	if err := New(path, 1, 1000, []string{"Item: test"}, []string{"body"}); err != nil {
		t.Fatal(err)
	}
	if err := WithWriteLock(path, func(f *os.File) error {
		return MarkContinued(f, "B0000001")
	}); err != nil {
		t.Fatal(err)
	}

	err := WithWriteLock(path, func(f *os.File) error {
		_, _, err := OpenForReply(f, 10)
		return err
	})
	if err != ErrAlreadyContinued {
		t.Fatalf("OpenForReply on a continued item = %v, want ErrAlreadyContinued", err)
	}
}

func TestOpenForReplyRejectsOverflow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "A0010304")
	if err := New(path, 1, 1000, nil, []string{strings.Repeat("x", 100)}); err != nil {
		t.Fatal(err)
	}
	err := WithWriteLock(path, func(f *os.File) error {
		_, _, err := OpenForReply(f, 1<<20)
		return err
	})
	if err != ErrTooFull {
		t.Fatalf("OpenForReply with an oversized reply = %v, want ErrTooFull", err)
	}
}

func TestAppendReplyUpdatesSequenceAndGrowsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "A0010304")
	if err := New(path, 1, 1000, []string{"Item: test"}, []string{"body"}); err != nil {
		t.Fatal(err)
	}
	before, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	err = WithWriteLock(path, func(f *os.File) error {
		if _, _, err := OpenForReply(f, 30); err != nil {
			return err
		}
		return AppendReply(f, 2, 2000, []string{"Reply to: test"}, []string{"reply body"})
	})
	if err != nil {
		t.Fatal(err)
	}

	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if after.Size() <= before.Size() {
		t.Fatalf("file did not grow: before=%d after=%d", before.Size(), after.Size())
	}

	var status StatusLine
	err = WithReadLock(path, func(f *os.File) error {
		head := make([]byte, StatusLineLen)
		if _, err := f.ReadAt(head, 0); err != nil {
			return err
		}
		status, err = Decode(head)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if status.Sequence != 2 {
		t.Fatalf("status.Sequence after reply = %d, want 2", status.Sequence)
	}
}

func TestEditRoundTripPreservesLaterReplies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "A0010304")
	if err := New(path, 1, 1000, []string{"Item: test"}, []string{"original body"}); err != nil {
		t.Fatal(err)
	}

	var lenBeforeEdit int64
	err := WithWriteLock(path, func(f *os.File) error {
		_, n, err := BeginEdit(f)
		lenBeforeEdit = n
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	// A reply lands after the edit snapshot was taken but before EDCF.
	if err := WithWriteLock(path, func(f *os.File) error {
		if _, _, err := OpenForReply(f, 30); err != nil {
			return err
		}
		return AppendReply(f, 2, 2000, []string{"Reply to: test"}, []string{"late reply"})
	}); err != nil {
		t.Fatal(err)
	}

	replacement := []byte("^00000003 00000BB8\nItem: test (edited)\n\nedited body\n")
	err = WithWriteLock(path, func(f *os.File) error {
		return ApplyEdit(f, lenBeforeEdit, 3, replacement)
	})
	if err != nil {
		t.Fatal(err)
	}

	var content []byte
	err = WithReadLock(path, func(f *os.File) error {
		var err error
		content, err = ReadAll(f)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "edited body") {
		t.Fatal("edited content missing from item after ApplyEdit")
	}
	if !strings.Contains(string(content), "late reply") {
		t.Fatal("reply appended after the edit snapshot was lost by ApplyEdit")
	}
}

func TestApplyEditRejectsShrunkFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "A0010304")
	if err := New(path, 1, 1000, []string{"Item: test"}, []string{"original body, long enough to matter"}); err != nil {
		t.Fatal(err)
	}
	var lenBeforeEdit int64
	if err := WithWriteLock(path, func(f *os.File) error {
		_, n, err := BeginEdit(f)
		lenBeforeEdit = n + 1000 // simulate a lenBeforeEdit the file can no longer satisfy
		return err
	}); err != nil {
		t.Fatal(err)
	}

	err := WithWriteLock(path, func(f *os.File) error {
		return ApplyEdit(f, lenBeforeEdit, 9, []byte("x"))
	})
	if err != ErrShrunkDuringEdit {
		t.Fatalf("ApplyEdit with an impossible lenBeforeEdit = %v, want ErrShrunkDuringEdit", err)
	}
}

func TestWithdrawRenamesFile(t *testing.T) {
	dir := t.TempDir()
	itemPath := filepath.Join(dir, "A0010304")
	withdrawnPath := itemPath + ".withdrawn"
	if err := New(itemPath, 1, 1000, []string{"Item: test"}, []string{"body"}); err != nil {
		t.Fatal(err)
	}
	if err := Withdraw(itemPath, withdrawnPath); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(itemPath); !os.IsNotExist(err) {
		t.Fatal("item still present at the original path after Withdraw")
	}
	if _, err := os.Stat(withdrawnPath); err != nil {
		t.Fatalf("withdrawn item missing: %v", err)
	}
}
