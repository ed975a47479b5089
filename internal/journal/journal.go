//go:build unix

// Package journal persists in-flight link replacements in a BoltDB file so that
// a run interrupted between rename and cleanup can be repaired later.
//
// # Record Lifecycle
//
//	Begin(target, temp, source)   before target is renamed to temp
//	    │
//	    ├──► Commit(target)       after cleanup, abort or successful rollback
//	    │
//	    └──► (crash)              record survives, Recover handles it next run
//
// # Recovery Rules
//
//	temp missing                  → nothing to do, drop record
//	temp present, target missing  → rename temp back to target
//	temp present, target present  → remove temp only if it is provably redundant
//	                                (regular file with nlink>1, or same content as
//	                                target); otherwise keep record, report error
package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ivoronin/linkdog/internal/logger"
	"github.com/ivoronin/linkdog/internal/types"
	"github.com/ivoronin/linkdog/internal/verifier"
)

const bucketName = "pending"

const keyVersion byte = 1 // Increment when record format changes

// ErrUnresolved is reported for records recovery could not settle safely.
var ErrUnresolved = errors.New("temporary file needs manual review")

// Entry is one in-flight replacement.
type Entry struct {
	Target  string
	Temp    string
	Source  string
	Started time.Time
}

// Action is what Recover did with an entry.
type Action int

const (
	ActionCleared  Action = iota // Temp already gone
	ActionRestored               // Temp renamed back to target
	ActionRemoved                // Redundant temp removed
	ActionKept                   // Left for manual review
)

func (a Action) String() string {
	switch a {
	case ActionCleared:
		return "cleared"
	case ActionRestored:
		return "restored"
	case ActionRemoved:
		return "removed"
	default:
		return "kept"
	}
}

// Recovery is the outcome for a single entry.
type Recovery struct {
	Entry  Entry
	Action Action
	Err    error
}

func (r Recovery) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", r.Entry.Target, r.Action, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Entry.Target, r.Action)
}

// Journal is a persistent set of in-flight replacements keyed by target path.
// A Journal opened with an empty path is disabled and every method is a no-op.
type Journal struct {
	db      *bolt.DB
	enabled bool
}

// Open opens or creates the journal at path.
// BoltDB's file lock prevents two instances from sharing a journal.
func Open(path string) (*Journal, error) {
	if path == "" {
		return &Journal{enabled: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal (locked by another instance?): %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Journal{db: db, enabled: true}, nil
}

// Enabled reports whether the journal is backed by a file.
func (j *Journal) Enabled() bool { return j.enabled }

// Close closes the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// makeKey builds the record key for a target path.
// Key = ver(1) + target
func makeKey(target string) []byte {
	return append([]byte{keyVersion}, target...)
}

// encodeValue serialises a record.
// Value = started(8) + temp + NUL + source
func encodeValue(e Entry) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, e.Started.UnixNano())
	buf.WriteString(e.Temp)
	buf.WriteByte(0)
	buf.WriteString(e.Source)
	return buf.Bytes()
}

func decodeEntry(key, value []byte) (Entry, error) {
	if len(key) < 1 || key[0] != keyVersion {
		return Entry{}, fmt.Errorf("unsupported record key version")
	}
	if len(value) < 8 {
		return Entry{}, fmt.Errorf("short record for %q", key[1:])
	}
	started := int64(binary.BigEndian.Uint64(value[:8])) //nolint:gosec // round-trips UnixNano
	temp, source, ok := bytes.Cut(value[8:], []byte{0})
	if !ok {
		return Entry{}, fmt.Errorf("malformed record for %q", key[1:])
	}
	return Entry{
		Target:  string(key[1:]),
		Temp:    string(temp),
		Source:  string(source),
		Started: time.Unix(0, started),
	}, nil
}

// Begin records that target is about to be renamed to temp.
func (j *Journal) Begin(target, temp, source string) error {
	if !j.enabled {
		return nil
	}
	e := Entry{Target: target, Temp: temp, Source: source, Started: time.Now()}
	err := j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put(makeKey(target), encodeValue(e))
	})
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	return nil
}

// Commit removes the record for target.
func (j *Journal) Commit(target string) error {
	if !j.enabled {
		return nil
	}
	err := j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete(makeKey(target))
	})
	if err != nil {
		return fmt.Errorf("journal commit: %w", err)
	}
	return nil
}

// Pending returns all records ordered by target path.
func (j *Journal) Pending() ([]Entry, error) {
	if !j.enabled {
		return nil, nil
	}
	var entries []Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			e, err := decodeEntry(k, v)
			if err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("journal read: %w", err)
	}
	return entries, nil
}

// Recover settles every pending record. In dry-run mode the filesystem and the
// journal are left untouched and the planned action is reported.
func (j *Journal) Recover(dryRun bool) ([]Recovery, error) {
	entries, err := j.Pending()
	if err != nil {
		return nil, err
	}

	log := logger.GetLogger("journal")
	results := make([]Recovery, 0, len(entries))
	for _, e := range entries {
		r := recoverEntry(e, dryRun)
		if r.Err != nil {
			log.Error(r)
		} else {
			log.Info(r)
		}
		if r.Action != ActionKept && !dryRun {
			if err := j.Commit(e.Target); err != nil {
				return results, err
			}
		}
		results = append(results, r)
	}
	return results, nil
}

func recoverEntry(e Entry, dryRun bool) Recovery {
	r := Recovery{Entry: e}

	tempInfo, err := os.Lstat(e.Temp)
	if errors.Is(err, fs.ErrNotExist) {
		r.Action = ActionCleared
		return r
	}
	if err != nil {
		r.Action = ActionKept
		r.Err = err
		return r
	}

	_, err = os.Lstat(e.Target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		r.Action = ActionRestored
		if !dryRun {
			if err := os.Rename(e.Temp, e.Target); err != nil {
				r.Action = ActionKept
				r.Err = fmt.Errorf("%w: restore: %w", ErrUnresolved, err)
			}
		}
		return r
	case err != nil:
		r.Action = ActionKept
		r.Err = err
		return r
	}

	if !redundant(tempInfo, e) {
		r.Action = ActionKept
		r.Err = fmt.Errorf("%w: %s differs from %s", ErrUnresolved, e.Temp, e.Target)
		return r
	}
	r.Action = ActionRemoved
	if !dryRun {
		if err := os.Remove(e.Temp); err != nil && !errors.Is(err, fs.ErrNotExist) {
			r.Action = ActionKept
			r.Err = err
		}
	}
	return r
}

// redundant reports whether the temp file's data also exists elsewhere.
func redundant(tempInfo os.FileInfo, e Entry) bool {
	if !tempInfo.Mode().IsRegular() {
		return false
	}
	if types.FromStat(e.Temp, tempInfo).Nlink > 1 {
		return true
	}
	targetInfo, err := os.Lstat(e.Target)
	if err != nil || !targetInfo.Mode().IsRegular() || targetInfo.Size() != tempInfo.Size() {
		return false
	}
	equal, err := verifier.New(0, nil).Compare(e.Temp, e.Target)
	return err == nil && equal
}
