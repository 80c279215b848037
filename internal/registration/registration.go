// Package registration implements the REGU/USER registration flow: mint
// a fresh shared secret from the secret seed pool, persist a new
// pending user record, and hand the secret off to the outbound mailer
// subprocess. Grounded in the teacher's subprocess-invocation pattern
// (internal/scheduler/executor.go's exec.CommandContext plus
// *exec.ExitError exit-code extraction) and internal/transfer/zmodem.go's
// StdinPipe technique for feeding a subprocess its input.
package registration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/stlalpha/rgtpd/internal/rgtplog"
	"github.com/stlalpha/rgtpd/internal/rgtpproto"
	"github.com/stlalpha/rgtpd/internal/secretseed"
	"github.com/stlalpha/rgtpd/internal/userdb"
)

// mailerTimeout bounds how long the mailer subprocess is given to run
// before it is killed and treated as a fatal failure.
const mailerTimeout = 30 * time.Second

// Outcome is the mailer's reported result, read off its exit status.
type Outcome int

const (
	// OutcomeSent means the mailer exited 0: the secret was delivered.
	OutcomeSent Outcome = iota
	// OutcomeSoftFail means the mailer exited 11: a transient failure
	// the caller may retry registration for.
	OutcomeSoftFail
	// OutcomeFatal means the mailer exited with anything else, or
	// couldn't be started at all.
	OutcomeFatal
)

var (
	// ErrCollision is returned when userid already has a user record.
	ErrCollision = errors.New("registration: userid is already registered")
	// ErrPoolLowWater is returned when the secret seed pool cannot
	// safely supply a fresh secret.
	ErrPoolLowWater = secretseed.ErrLowWater
)

// Mailer spawns the outbound mail subprocess that delivers a freshly
// minted secret to a newly registered user.
type Mailer struct {
	// Path is the mailer executable.
	Path string
}

// Send runs the mailer with secret piped to its stdin and
// (userid, access, clientid) as its argument list, returning the
// Outcome implied by its exit status: 0 is OutcomeSent, 11 is
// OutcomeSoftFail, anything else (including a failure to start) is
// OutcomeFatal.
func (m Mailer) Send(ctx context.Context, secret []byte, userid string, access rgtpproto.Access, clientid string) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, mailerTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.Path, userid, access.String(), clientid)
	cmd.Stdin = bytes.NewReader(secret)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		rgtplog.Infof("registration: mailer delivered secret to %s", userid)
		return OutcomeSent, nil
	}

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		rgtplog.Errorf("registration: mailer failed to start for %s: %v", userid, err)
		return OutcomeFatal, err
	}

	switch exitErr.ExitCode() {
	case 11:
		rgtplog.Warnf("registration: mailer soft-failed for %s: %s", userid, stderr.String())
		return OutcomeSoftFail, nil
	default:
		rgtplog.Errorf("registration: mailer exited %d for %s: %s", exitErr.ExitCode(), userid, stderr.String())
		return OutcomeFatal, nil
	}
}

// Register mints a fresh secret from seed, inserts a new pending
// MustCreate record for userid into db, and hands the secret to mailer.
// It returns ErrCollision if userid is already registered, and
// ErrPoolLowWater if the seed pool can't safely supply a secret for
// this registration.
func Register(db *userdb.DB, seed *secretseed.Pool, mailer Mailer, userid string, clientid string) (Outcome, error) {
	secret, err := seed.Take(rgtpproto.SecretMaxBytes)
	if err != nil {
		return OutcomeFatal, err
	}

	entry := userdb.Entry{
		UserID:      userid,
		Access:      rgtpproto.AccessRead,
		Ident:       userdb.IdentMD5Initial,
		SecretBytes: rgtpproto.SecretMaxBytes,
		LastRef:     0,
	}
	copy(entry.Secret[:], secret)

	result, err := db.Change(entry, userdb.MustCreate)
	if err != nil {
		return OutcomeFatal, err
	}
	if result == userdb.PolicyRejected {
		return OutcomeFatal, ErrCollision
	}
	if result == userdb.Full {
		return OutcomeFatal, fmt.Errorf("registration: user database has no free slots")
	}

	return mailer.Send(context.Background(), secret, userid, entry.Access, clientid)
}
