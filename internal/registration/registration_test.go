package registration

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stlalpha/rgtpd/internal/rgtpproto"
	"github.com/stlalpha/rgtpd/internal/secretseed"
	"github.com/stlalpha/rgtpd/internal/userdb"
)

func lookPath(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("command %q not found in PATH, skipping", name)
	}
	return path
}

func scriptMailer(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mailer.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMailerSendSuccessReadsStdin(t *testing.T) {
	lookPath(t, "sh")
	outPath := filepath.Join(t.TempDir(), "captured")
	mailer := Mailer{Path: scriptMailer(t, "cat > "+outPath+"\nexit 0\n")}

	outcome, err := mailer.Send(context.Background(), []byte("s3cr3t"), "alice", rgtpproto.AccessRead, "203.0.113.5")
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeSent {
		t.Fatalf("outcome = %v, want OutcomeSent", outcome)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "s3cr3t" {
		t.Fatalf("mailer stdin capture = %q, want the secret bytes", data)
	}
}

func TestMailerSendSoftFail(t *testing.T) {
	lookPath(t, "sh")
	mailer := Mailer{Path: scriptMailer(t, "cat >"+os.DevNull+"\nexit 11\n")}

	outcome, err := mailer.Send(context.Background(), []byte("x"), "bob", rgtpproto.AccessRead, "203.0.113.6")
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeSoftFail {
		t.Fatalf("outcome = %v, want OutcomeSoftFail", outcome)
	}
}

func TestMailerSendFatalOnOtherExitCode(t *testing.T) {
	lookPath(t, "sh")
	mailer := Mailer{Path: scriptMailer(t, "cat >"+os.DevNull+"\nexit 3\n")}

	outcome, err := mailer.Send(context.Background(), []byte("x"), "carol", rgtpproto.AccessRead, "203.0.113.7")
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeFatal {
		t.Fatalf("outcome = %v, want OutcomeFatal", outcome)
	}
}

func TestMailerSendFatalWhenExecutableMissing(t *testing.T) {
	mailer := Mailer{Path: filepath.Join(t.TempDir(), "does-not-exist")}
	outcome, err := mailer.Send(context.Background(), []byte("x"), "dave", rgtpproto.AccessRead, "203.0.113.8")
	if err == nil {
		t.Fatal("Send with a missing executable returned nil error")
	}
	if outcome != OutcomeFatal {
		t.Fatalf("outcome = %v, want OutcomeFatal", outcome)
	}
}

func TestRegisterInsertsRecordAndDeliversSecret(t *testing.T) {
	lookPath(t, "sh")
	dir := t.TempDir()

	db, err := userdb.Open(filepath.Join(dir, "userdatabase"), 17)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "secretseed"), []byte("0123456789abcdef0123456789abcdef"), 0600); err != nil {
		t.Fatal(err)
	}
	seed := secretseed.New(filepath.Join(dir, "secretseed"), 0, 0)

	outPath := filepath.Join(dir, "captured")
	mailer := Mailer{Path: scriptMailer(t, "cat > "+outPath+"\nexit 0\n")}

	outcome, err := Register(db, seed, mailer, "newuser", "198.51.100.9")
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeSent {
		t.Fatalf("outcome = %v, want OutcomeSent", outcome)
	}

	entry, ok, err := db.Find("newuser", -1)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("Register did not persist a user record")
	}
	if entry.SecretBytes != rgtpproto.SecretMaxBytes {
		t.Fatalf("entry.SecretBytes = %d, want %d", entry.SecretBytes, rgtpproto.SecretMaxBytes)
	}

	secretFile, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(secretFile) != rgtpproto.SecretMaxBytes {
		t.Fatalf("mailer received %d bytes, want %d", len(secretFile), rgtpproto.SecretMaxBytes)
	}
	if string(secretFile) != string(entry.Secret[:]) {
		t.Fatal("mailer did not receive the exact secret persisted to the user record")
	}
}

func TestRegisterRejectsCollision(t *testing.T) {
	dir := t.TempDir()
	db, err := userdb.Open(filepath.Join(dir, "userdatabase"), 17)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Change(userdb.Entry{UserID: "taken", Access: rgtpproto.AccessRead}, userdb.MustCreate); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "secretseed"), make([]byte, 64), 0600); err != nil {
		t.Fatal(err)
	}
	seed := secretseed.New(filepath.Join(dir, "secretseed"), 0, 0)

	_, err = Register(db, seed, Mailer{Path: "/bin/true"}, "taken", "198.51.100.10")
	if err != ErrCollision {
		t.Fatalf("Register on an existing userid = %v, want ErrCollision", err)
	}
}

func TestRegisterRefusesWhenPoolBelowLowWater(t *testing.T) {
	dir := t.TempDir()
	db, err := userdb.Open(filepath.Join(dir, "userdatabase"), 17)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "secretseed"), make([]byte, 8), 0600); err != nil {
		t.Fatal(err)
	}
	seed := secretseed.New(filepath.Join(dir, "secretseed"), 64, 0)

	_, err = Register(db, seed, Mailer{Path: "/bin/true"}, "someone", "198.51.100.11")
	if err != ErrPoolLowWater {
		t.Fatalf("Register with a depleted pool = %v, want ErrPoolLowWater", err)
	}
}
