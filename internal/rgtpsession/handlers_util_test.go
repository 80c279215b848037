package rgtpsession

import (
	"os"
	"strings"
	"testing"
)

func TestHandleNOOPReplies(t *testing.T) {
	s, conn := newTestSession(t, newTestDeps(t), "")
	if err := handleNOOP(s, ""); err != nil {
		t.Fatal(err)
	}
	resp := conn.responses()
	if len(resp) != 1 || !strings.HasPrefix(resp[0], "200 ") {
		t.Fatalf("handleNOOP responses = %v, want one 200 line", resp)
	}
}

func TestHandleQUITReturnsErrQuit(t *testing.T) {
	s, _ := newTestSession(t, newTestDeps(t), "")
	if err := handleQUIT(s, ""); err != errQuit {
		t.Fatalf("handleQUIT error = %v, want errQuit", err)
	}
}

func TestHandleDBUGEnablesSupertrace(t *testing.T) {
	s, _ := newTestSession(t, newTestDeps(t), "")
	if s.State.Supertrace {
		t.Fatal("Supertrace already on before DBUG")
	}
	if err := handleDBUG(s, ""); err != nil {
		t.Fatal(err)
	}
	if !s.State.Supertrace {
		t.Fatal("DBUG did not enable Supertrace")
	}
}

func TestHandleHELPEnablesSupertraceAndListsCommands(t *testing.T) {
	s, conn := newTestSession(t, newTestDeps(t), "")
	if err := handleHELP(s, ""); err != nil {
		t.Fatal(err)
	}
	if !s.State.Supertrace {
		t.Fatal("HELP did not enable Supertrace")
	}
	resp := conn.responses()
	if len(resp) < 2 || !strings.HasPrefix(resp[0], "250 ") {
		t.Fatalf("handleHELP responses = %v, want a 250 header followed by payload", resp)
	}
	joined := strings.Join(resp, "\n")
	if !strings.Contains(joined, "EDCF") || !strings.Contains(joined, "NEWI") {
		t.Fatalf("help payload missing expected commands: %v", resp)
	}
}

func TestHandleMOTDEmptyWhenMissing(t *testing.T) {
	deps := newTestDeps(t)
	s, conn := newTestSession(t, deps, "")
	if err := handleMOTD(s, ""); err != nil {
		t.Fatal(err)
	}
	resp := conn.responses()
	if len(resp) != 2 || resp[0] != "250 Message of the day" || resp[1] != "." {
		t.Fatalf("handleMOTD on missing file = %v, want header plus bare terminator", resp)
	}
}

func TestHandleMOTDStreamsContent(t *testing.T) {
	deps := newTestDeps(t)
	if err := os.WriteFile(deps.Spool.MOTD(), []byte("line one\nline two\n"), 0644); err != nil {
		t.Fatal(err)
	}
	s, conn := newTestSession(t, deps, "")
	if err := handleMOTD(s, ""); err != nil {
		t.Fatal(err)
	}
	resp := conn.responses()
	want := []string{"250 Message of the day", "line one", "line two", "."}
	if strings.Join(resp, "|") != strings.Join(want, "|") {
		t.Fatalf("handleMOTD responses = %v, want %v", resp, want)
	}
}

func TestSplitLines(t *testing.T) {
	if got := splitLines([]byte("")); got != nil {
		t.Fatalf("splitLines(empty) = %v, want nil", got)
	}
	if got := splitLines([]byte("a\nb\n")); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("splitLines(a,b) = %v", got)
	}
}
