package rgtpsession

import (
	"os"
	"strings"
	"testing"

	"github.com/stlalpha/rgtpd/internal/itemstore"
	"github.com/stlalpha/rgtpd/internal/rgtpindex"
)

func TestHandleITEMNotFound(t *testing.T) {
	s, _ := newTestSession(t, newTestDeps(t), "")
	err := handleITEM(s, "A0000001")
	rerr, ok := err.(*RefusalError)
	if !ok || rerr.Code != CodeNotFound {
		t.Fatalf("handleITEM for a missing item = %v, want a 410 refusal", err)
	}
}

func TestHandleITEMAndSTATRoundTrip(t *testing.T) {
	deps := newTestDeps(t)
	id := "A0000001"
	if err := itemstore.New(deps.Spool.Item(id), 1, 1000, []string{"From: alice", "Subject: hi"}, []string{"body line"}); err != nil {
		t.Fatal(err)
	}

	s, conn := newTestSession(t, deps, "")
	if err := handleITEM(s, strings.ToLower(id)); err != nil {
		t.Fatal(err)
	}
	resp := conn.responses()
	if len(resp) < 2 || !strings.HasPrefix(resp[0], "250 ") {
		t.Fatalf("handleITEM responses = %v", resp)
	}
	if !strings.Contains(strings.Join(resp, "\n"), "body line") {
		t.Fatalf("handleITEM output missing body: %v", resp)
	}

	s2, conn2 := newTestSession(t, deps, "")
	if err := handleSTAT(s2, id); err != nil {
		t.Fatal(err)
	}
	resp2 := conn2.responses()
	if len(resp2) != 1 || !strings.HasPrefix(resp2[0], "211 ") {
		t.Fatalf("handleSTAT responses = %v", resp2)
	}
	if !strings.Contains(resp2[0], "continued-in=-") {
		t.Fatalf("fresh item STAT should report no continuation: %v", resp2)
	}
}

func TestHandleINDXListsAppendedRecords(t *testing.T) {
	deps := newTestDeps(t)
	err := deps.Index.WithWriteLock(func(f *os.File) error {
		if err := rgtpindex.Append(f, rgtpindex.Record{Sequence: 1, Timestamp: 100, ItemID: "A0000001", UserID: "alice", Type: rgtpindex.TypeItem, Subject: "first"}); err != nil {
			return err
		}
		return rgtpindex.Append(f, rgtpindex.Record{Sequence: 2, Timestamp: 200, ItemID: "A0000002", UserID: "bob", Type: rgtpindex.TypeItem, Subject: "second"})
	})
	if err != nil {
		t.Fatal(err)
	}

	s, conn := newTestSession(t, deps, "")
	if err := handleINDX(s, ""); err != nil {
		t.Fatal(err)
	}
	resp := conn.responses()
	if len(resp) != 4 { // header + 2 records + terminator
		t.Fatalf("handleINDX responses = %v, want 4 lines", resp)
	}
	if !strings.Contains(resp[1], "A0000001") || !strings.Contains(resp[2], "A0000002") {
		t.Fatalf("handleINDX missing expected item ids: %v", resp)
	}
}

func TestHandleINDXFromTimestampSkipsEarlierRecords(t *testing.T) {
	deps := newTestDeps(t)
	err := deps.Index.WithWriteLock(func(f *os.File) error {
		if err := rgtpindex.Append(f, rgtpindex.Record{Sequence: 1, Timestamp: 100, ItemID: "A0000001", UserID: "alice", Type: rgtpindex.TypeItem, Subject: "first"}); err != nil {
			return err
		}
		return rgtpindex.Append(f, rgtpindex.Record{Sequence: 2, Timestamp: 200, ItemID: "A0000002", UserID: "bob", Type: rgtpindex.TypeItem, Subject: "second"})
	})
	if err != nil {
		t.Fatal(err)
	}

	s, conn := newTestSession(t, deps, "")
	if err := handleINDX(s, "000000C8"); err != nil { // 200 in hex
		t.Fatal(err)
	}
	resp := conn.responses()
	if len(resp) != 3 { // header + 1 record + terminator
		t.Fatalf("handleINDX from=200 responses = %v, want 3 lines", resp)
	}
	if !strings.Contains(resp[1], "A0000002") {
		t.Fatalf("handleINDX from=200 should only include the later record: %v", resp)
	}
}

func TestHandleELOGStreamsAppendedContent(t *testing.T) {
	deps := newTestDeps(t)
	if err := os.WriteFile(deps.Spool.EditLog(), []byte("first entry\n\n"), 0644); err != nil {
		t.Fatal(err)
	}
	s, conn := newTestSession(t, deps, "")
	if err := handleELOG(s, ""); err != nil {
		t.Fatal(err)
	}
	resp := conn.responses()
	if !strings.Contains(strings.Join(resp, "\n"), "first entry") {
		t.Fatalf("handleELOG responses = %v", resp)
	}
}
