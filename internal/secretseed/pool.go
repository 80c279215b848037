// Package secretseed implements the random byte pool that registration
// draws fresh shared secrets from: consuming bytes truncates them off
// the tail of the pool file, so the same bytes are never handed out
// twice. Grounded in the same read-mutate-write-under-lock shape as
// internal/idalloc's counters, specialized to a byte slice instead of a
// decimal or hex text value.
package secretseed

import (
	"errors"
	"os"

	"github.com/stlalpha/rgtpd/internal/rgtplock"
)

// ErrLowWater is returned by Take when consuming n bytes would leave
// the pool below lowWater, the threshold below which the pool refuses
// further withdrawals rather than running dry mid-registration.
var ErrLowWater = errors.New("secretseed: pool is at or below its low-water threshold")

// Pool is a handle to the spool's secretseed file.
type Pool struct {
	path      string
	lowWater  int
	warnLevel int
}

// New returns a handle to the pool file at path. lowWater is the
// remaining-byte floor below which Take refuses to withdraw; warnLevel
// is the remaining-byte level at or below which Remaining's caller
// should log a refill warning (Take still succeeds above lowWater).
func New(path string, lowWater, warnLevel int) *Pool {
	return &Pool{path: path, lowWater: lowWater, warnLevel: warnLevel}
}

// Remaining returns the current size of the pool file in bytes.
func (p *Pool) Remaining() (int, error) {
	info, err := os.Stat(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int(info.Size()), nil
}

// BelowWarnLevel reports whether the pool is at or below warnLevel.
func (p *Pool) BelowWarnLevel() (bool, error) {
	n, err := p.Remaining()
	if err != nil {
		return false, err
	}
	return n <= p.warnLevel, nil
}

// Take consumes n bytes from the tail of the pool under an exclusive
// lock, truncating the file so those bytes can never be handed out
// again, and returns them. It refuses (ErrLowWater) if the pool holds
// fewer than n bytes, or would fall below lowWater after the
// withdrawal.
func (p *Pool) Take(n int) ([]byte, error) {
	var taken []byte

	err := rgtplock.WithLock(p.path, os.O_RDWR|os.O_CREATE, 0600, rgtplock.Write, func(f *os.File) error {
		info, err := f.Stat()
		if err != nil {
			return err
		}
		size := int(info.Size())
		if size < n || size-n < p.lowWater {
			return ErrLowWater
		}

		buf := make([]byte, n)
		if _, err := f.ReadAt(buf, int64(size-n)); err != nil {
			return err
		}
		if err := f.Truncate(int64(size - n)); err != nil {
			return err
		}
		taken = buf
		return nil
	})
	if err != nil {
		return nil, err
	}
	return taken, nil
}

// Refill appends freshly generated random bytes to the pool under an
// exclusive lock, for the admin path that tops the pool back up.
func (p *Pool) Refill(data []byte) error {
	return rgtplock.WithLock(p.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600, rgtplock.Write, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}
