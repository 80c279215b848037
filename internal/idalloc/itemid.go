package idalloc

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stlalpha/rgtpd/internal/rgtplock"
	"github.com/stlalpha/rgtpd/internal/rgtpproto"
)

// ItemIDAllocator mints Item-IDs of the form <year-letter><DDD><HH><MM>:
// one letter for the year (StartingYear = 'A', wrapping every 26 years),
// three digits of day-of-year, two of hour, two of minute, all in UTC.
// It guarantees strict monotonicity (and therefore uniqueness) across
// calls by remembering the Unix time of the last mint in an arbiter
// file: the mint time is the wall-clock time or last+LeapSecondFudge
// seconds, whichever is later, which both breaks ties within the same
// minute and absorbs a backward leap-second step.
type ItemIDAllocator struct {
	path string
	now  func() time.Time
}

// NewItemIDAllocator returns an allocator backed by the idarbiter file
// at path.
func NewItemIDAllocator(path string) *ItemIDAllocator {
	return &ItemIDAllocator{path: path, now: time.Now}
}

// Mint returns the next Item-ID.
func (a *ItemIDAllocator) Mint() (string, error) {
	var id string
	err := rgtplock.WithLock(a.path, os.O_RDWR|os.O_CREATE, 0644, rgtplock.Write, func(f *os.File) error {
		last, err := readUnixTime(f)
		if err != nil {
			return err
		}
		candidate := a.now().UTC().Unix()
		if candidate < last+rgtpproto.LeapSecondFudge {
			candidate = last + rgtpproto.LeapSecondFudge
		}
		if err := writeUnixTime(f, candidate); err != nil {
			return err
		}
		mintedID, err := formatItemID(time.Unix(candidate, 0).UTC())
		if err != nil {
			return err
		}
		id = mintedID
		return nil
	})
	return id, err
}

func formatItemID(t time.Time) (string, error) {
	years := t.Year() - rgtpproto.StartingYear
	if years < 0 {
		return "", fmt.Errorf("idalloc: mint time %s precedes StartingYear %d", t, rgtpproto.StartingYear)
	}
	letter := byte('A' + (years % 26))
	id := fmt.Sprintf("%c%03d%02d%02d", letter, t.YearDay(), t.Hour(), t.Minute())
	if len(id) != rgtpproto.ItemIDLen {
		return "", fmt.Errorf("idalloc: minted id %q is %d bytes, want %d", id, len(id), rgtpproto.ItemIDLen)
	}
	return id, nil
}

func readUnixTime(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if info.Size() == 0 {
		return 0, nil
	}
	buf := make([]byte, info.Size())
	if _, err := f.ReadAt(buf, 0); err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(buf))
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("idalloc: corrupt idarbiter file: %w", err)
	}
	return v, nil
}

func writeUnixTime(f *os.File, v int64) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.WriteAt([]byte(strconv.FormatInt(v, 10)+"\n"), 0)
	return err
}
