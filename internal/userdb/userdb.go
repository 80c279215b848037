// Package userdb implements the RGTP user database: a fixed-record,
// open-addressed hash table file shared by every cooperating worker
// process. It is grounded in the fixed-record binary file techniques the
// reference corpus uses for its own cross-process coordination files
// (configtool/multinode's NodeStatus/ResourceLock records, read and
// written with encoding/binary over a flat file) and in the teacher's
// mutex-guarded, load-on-open manager shape (user.UserMgr) — generalized
// here from an in-memory JSON map to an on-disk hash table because the
// specification requires the table to be the shared state across
// processes, not a private one held in one process's memory.
package userdb

import (
	"errors"
	"fmt"
	"os"

	"github.com/stlalpha/rgtpd/internal/rgtplock"
)

// Mode selects Change's create policy.
type Mode int

const (
	NeverCreate     Mode = 0
	CreateIfMissing Mode = 1
	MustCreate      Mode = 2
	Delete          Mode = -1
)

// Result is Change's outcome.
type Result int

const (
	OK             Result = 0
	PolicyRejected Result = 1
	Full           Result = 2
)

var ErrCorrupt = errors.New("userdb: file size is not a multiple of the record length")

// DB is a handle to a user database file of a fixed slot count.
type DB struct {
	path  string
	slots int
}

// Open opens (creating if necessary) a user database of the given slot
// count. An existing file whose size doesn't match slots*RecordLen is
// reported as corrupt rather than silently truncated or grown.
func Open(path string, slots int) (*DB, error) {
	if slots <= 0 {
		return nil, fmt.Errorf("userdb: slots must be positive, got %d", slots)
	}
	db := &DB{path: path, slots: slots}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	want := int64(slots) * int64(RecordLen)
	if info.Size() == 0 {
		if err := f.Truncate(want); err != nil {
			return nil, err
		}
	} else if info.Size() != want {
		return nil, fmt.Errorf("%w: have %d bytes, want %d for %d slots", ErrCorrupt, info.Size(), want, slots)
	}
	return db, nil
}

func (db *DB) slotOffset(slot int) int64 {
	return int64(slot) * int64(RecordLen)
}

func (db *DB) readSlot(f *os.File, slot int) ([]byte, error) {
	buf := make([]byte, RecordLen)
	if _, err := f.ReadAt(buf, db.slotOffset(slot)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (db *DB) writeSlot(f *os.File, slot int, rec []byte) error {
	_, err := f.WriteAt(rec, db.slotOffset(slot))
	return err
}

// probe walks the linear probe chain starting at hash(userid) mod N,
// invoking visit for every slot until visit returns true (stop) or the
// whole table has been walked once. It returns the slot index visit
// stopped at, or -1 if the table was exhausted.
func (db *DB) probe(f *os.File, userid string, visit func(slot int, rec []byte) (stop bool)) (int, error) {
	start := int(Hash(userid)) % db.slots
	for i := 0; i < db.slots; i++ {
		slot := (start + i) % db.slots
		rec, err := db.readSlot(f, slot)
		if err != nil {
			return -1, err
		}
		if visit(slot, rec) {
			return slot, nil
		}
	}
	return -1, nil
}

// Find looks up userid. access < 0 matches any access level; otherwise it
// must match exactly. Probing starts at hash(userid) mod N, advances
// linearly, and stops at the first empty slot that wasn't a match (a
// genuine miss) or once the whole table has been walked.
func (db *DB) Find(userid string, access int) (Entry, bool, error) {
	var found Entry
	var ok bool

	err := rgtplock.WithLock(db.path, os.O_RDONLY, 0644, rgtplock.Read, func(f *os.File) error {
		_, err := db.probe(f, userid, func(slot int, rec []byte) bool {
			if empty(rec) {
				return true // miss: stop at first empty slot
			}
			e := decode(rec)
			if e.UserID != userid {
				return false
			}
			if access >= 0 && int(e.Access) != access {
				return false
			}
			found, ok = e, true
			return true
		})
		return err
	})
	if err != nil {
		return Entry{}, false, err
	}
	return found, ok, nil
}

// Change applies mode's create policy for entry.UserID:
//
//   - NeverCreate requires an existing record and overwrites it in place.
//   - CreateIfMissing overwrites if found, else uses the first empty slot
//     seen while probing.
//   - MustCreate fails if found, else inserts into the first empty slot.
//   - Delete wipes the slot in place.
func (db *DB) Change(entry Entry, mode Mode) (Result, error) {
	var result Result

	err := rgtplock.WithLock(db.path, os.O_RDWR, 0644, rgtplock.Write, func(f *os.File) error {
		var matchSlot = -1
		var firstEmpty = -1

		_, err := db.probe(f, entry.UserID, func(slot int, rec []byte) bool {
			if empty(rec) {
				if firstEmpty < 0 {
					firstEmpty = slot
				}
				return true // miss
			}
			if decode(rec).UserID == entry.UserID {
				matchSlot = slot
				return true
			}
			return false
		})
		if err != nil {
			return err
		}

		switch mode {
		case NeverCreate:
			if matchSlot < 0 {
				result = PolicyRejected
				return nil
			}
			rec := encode(entry)
			result = OK
			return db.writeSlot(f, matchSlot, rec[:])

		case CreateIfMissing:
			target := matchSlot
			if target < 0 {
				target = firstEmpty
			}
			if target < 0 {
				result = Full
				return nil
			}
			rec := encode(entry)
			result = OK
			return db.writeSlot(f, target, rec[:])

		case MustCreate:
			if matchSlot >= 0 {
				result = PolicyRejected
				return nil
			}
			if firstEmpty < 0 {
				result = Full
				return nil
			}
			rec := encode(entry)
			result = OK
			return db.writeSlot(f, firstEmpty, rec[:])

		case Delete:
			if matchSlot < 0 {
				result = PolicyRejected
				return nil
			}
			rec, err := db.readSlot(f, matchSlot)
			if err != nil {
				return err
			}
			wipe(rec)
			result = OK
			return db.writeSlot(f, matchSlot, rec)

		default:
			return fmt.Errorf("userdb: unknown mode %d", mode)
		}
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

// allEntries returns every occupied record, in slot order, under a read
// lock. Used by Tidy.
func (db *DB) allEntries() ([]Entry, []byte, error) {
	var entries []Entry
	var snapshot []byte

	err := rgtplock.WithLock(db.path, os.O_RDONLY, 0644, rgtplock.Read, func(f *os.File) error {
		buf := make([]byte, int64(db.slots)*int64(RecordLen))
		if _, err := f.ReadAt(buf, 0); err != nil {
			return err
		}
		snapshot = buf
		for slot := 0; slot < db.slots; slot++ {
			rec := buf[slot*RecordLen : (slot+1)*RecordLen]
			if !empty(rec) {
				entries = append(entries, decode(rec))
			}
		}
		return nil
	})
	return entries, snapshot, err
}

// All returns every occupied entry in the database, in slot order (not
// insertion order), for inspection tooling such as cmd/rgtpadmin.
func (db *DB) All() ([]Entry, error) {
	entries, _, err := db.allEntries()
	return entries, err
}

// Tidy rehashes every occupied record into a fresh table of newSlots
// slots, preserving the same probing semantics (so a subsequent Find
// behaves identically, just against a differently sized table) and the
// exact bytes of every record. If the write-back fails partway through,
// the original buffer is restored to disk before returning the error —
// the only automated rollback in the system, per the specification's
// failure-semantics section.
func (db *DB) Tidy(newSlots int) error {
	if newSlots <= 0 {
		return fmt.Errorf("userdb: newSlots must be positive, got %d", newSlots)
	}

	entries, oldSnapshot, err := db.allEntries()
	if err != nil {
		return err
	}

	newTable := make([]byte, int64(newSlots)*int64(RecordLen))
	occupied := make([]bool, newSlots)
	for _, e := range entries {
		start := int(Hash(e.UserID)) % newSlots
		placed := false
		for i := 0; i < newSlots; i++ {
			slot := (start + i) % newSlots
			if !occupied[slot] {
				rec := encode(e)
				copy(newTable[slot*RecordLen:(slot+1)*RecordLen], rec[:])
				occupied[slot] = true
				placed = true
				break
			}
		}
		if !placed {
			return fmt.Errorf("userdb: tidy target table of %d slots is too small for %d records", newSlots, len(entries))
		}
	}

	writeErr := rgtplock.WithLock(db.path, os.O_RDWR, 0644, rgtplock.Write, func(f *os.File) error {
		if err := f.Truncate(int64(len(newTable))); err != nil {
			return err
		}
		_, err := f.WriteAt(newTable, 0)
		return err
	})
	if writeErr != nil {
		// Restore the old buffer (old size) before surfacing the failure.
		_ = rgtplock.WithLock(db.path, os.O_RDWR, 0644, rgtplock.Write, func(f *os.File) error {
			if err := f.Truncate(int64(len(oldSnapshot))); err != nil {
				return err
			}
			_, err := f.WriteAt(oldSnapshot, 0)
			return err
		})
		return writeErr
	}

	db.slots = newSlots
	return nil
}

// Slots returns the current table size.
func (db *DB) Slots() int { return db.slots }
