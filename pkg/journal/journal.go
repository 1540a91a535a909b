// Package journal persists completed turns to a local key-value store so a
// restarted process can rehydrate its short-term memory window without
// replaying the graph. One journal serves every tenant; keys are prefixed
// by tenant id and ordered by write time.
package journal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/mnemon-dev/mnemon/pkg/types"
)

// Entry is one journaled turn.
type Entry struct {
	Tenant    string          `json:"tenant"`
	UserInput string          `json:"user_input"`
	Response  string          `json:"response"`
	Facts     *types.Triplets `json:"facts,omitempty"`
	At        time.Time       `json:"at"`
}

// Journal is a Badger-backed turn log.
type Journal struct {
	db *badger.DB

	now func() time.Time // test hook
}

// Open opens or creates the journal at path. An empty path selects an
// in-memory journal that does not survive restarts.
func Open(path string) (*Journal, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Close flushes and closes the underlying store.
func (j *Journal) Close() error {
	return j.db.Close()
}

// key layout: "turn/<tenant>/<unixnano zero-padded>", so a prefix scan per
// tenant yields chronological order.
func turnKey(tenant string, at time.Time) []byte {
	return []byte(fmt.Sprintf("turn/%s/%020d", tenant, at.UnixNano()))
}

func turnPrefix(tenant string) []byte {
	return []byte("turn/" + tenant + "/")
}

// Append records one completed turn.
func (j *Journal) Append(tenant, userInput, response string, facts *types.Triplets) error {
	if tenant == "" || strings.Contains(tenant, "/") {
		return fmt.Errorf("invalid tenant id %q", tenant)
	}

	entry := Entry{
		Tenant:    tenant,
		UserInput: userInput,
		Response:  response,
		Facts:     facts,
		At:        j.now().UTC(),
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}

	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(turnKey(tenant, entry.At), payload)
	})
}

// Recent returns up to n most recent turns for the tenant, oldest first,
// ready to replay into a short-term memory window.
func (j *Journal) Recent(tenant string, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	var out []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = turnPrefix(tenant)
		it := txn.NewIterator(opts)
		defer it.Close()

		// reverse iteration needs a seek key past the whole prefix
		seek := append(turnPrefix(tenant), 0xFF)
		for it.Seek(seek); it.Valid() && len(out) < n; it.Next() {
			var entry Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			out = append(out, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// collected newest first, flip to chronological
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Prune drops journaled turns older than the horizon for every tenant.
func (j *Journal) Prune(horizon time.Duration) (int, error) {
	cutoff := j.now().UTC().Add(-horizon).UnixNano()

	var stale [][]byte
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("turn/")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			parts := strings.Split(string(key), "/")
			if len(parts) != 3 {
				continue
			}
			nanos, err := strconv.ParseInt(parts[2], 10, 64)
			if err != nil {
				continue
			}
			if nanos < cutoff {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, key := range stale {
		if err := j.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		}); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}
