/* Copyright 2024 Bosun Labs
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package node

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/bosunlabs/bosun/core"

	bolt "go.etcd.io/bbolt"
)

var (
	rosterBucket  = []byte("roster")
	journalBucket = []byte("journal")
)

// Journal is bbolt-backed persistence for a Node: a snapshot of the
// service roster and an append-only record of published envelopes.
//
// All methods are safe on a nil *Journal, which makes persistence
// easy to leave out.
type Journal struct {
	Debug    bool
	filename string
	db       *bolt.DB
}

// JournalEntry is one recorded envelope.
type JournalEntry struct {
	Seq     uint64      `json:"seq"`
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload,omitempty"`
	At      time.Time   `json:"at"`
}

// NewJournal makes a Journal that will store its data in the given
// file.  Call Open before use.
func NewJournal(filename string) (*Journal, error) {
	return &Journal{
		filename: filename,
	}, nil
}

// Open opens the underlying database and creates the buckets.
func (j *Journal) Open(ctx context.Context) error {
	if j == nil {
		return nil
	}

	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(j.filename, 0644, opts)
	if err != nil {
		return err
	}
	j.db = db

	return j.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(rosterBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(journalBucket)
		return err
	})
}

// Close closes the underlying database.
func (j *Journal) Close(ctx context.Context) error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}

// WriteRoster replaces the stored roster snapshot.
func (j *Journal) WriteRoster(ctx context.Context, roster []core.ServiceInfo) error {
	if j == nil {
		return nil
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(rosterBucket); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		b, err := tx.CreateBucket(rosterBucket)
		if err != nil {
			return err
		}
		for i, info := range roster {
			js, err := json.Marshal(&info)
			if err != nil {
				return err
			}
			// Key by position to preserve registration order.
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, uint64(i))
			if err = b.Put(key, js); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadRoster returns the stored roster snapshot (in registration
// order).
func (j *Journal) ReadRoster(ctx context.Context) ([]core.ServiceInfo, error) {
	if j == nil {
		return nil, nil
	}

	acc := make([]core.ServiceInfo, 0, 16)
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(rosterBucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var m struct {
				Name  string `json:"name"`
				State string `json:"state"`
			}
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			acc = append(acc, core.ServiceInfo{Name: m.Name, State: parseState(m.State)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return acc, nil
}

func parseState(s string) core.ServiceState {
	for _, state := range []core.ServiceState{
		core.Created, core.Registered, core.Started, core.Stopped, core.Removed,
	} {
		if state.String() == s {
			return state
		}
	}
	return core.Created
}

// Append records one published envelope.
func (j *Journal) Append(ctx context.Context, env core.Envelope) error {
	if j == nil {
		return nil
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(journalBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		entry := JournalEntry{
			Seq:     seq,
			Topic:   env.Topic,
			Payload: env.Payload,
			At:      time.Now().UTC(),
		}
		js, err := json.Marshal(&entry)
		if err != nil {
			return err
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, js)
	})
}

// Entries returns up to limit recorded envelopes, oldest first.
// With topic != "", only that topic's entries are returned.  A limit
// of 0 means no limit.
func (j *Journal) Entries(ctx context.Context, topic string, limit int) ([]JournalEntry, error) {
	if j == nil {
		return nil, nil
	}

	acc := make([]JournalEntry, 0, 32)
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(journalBucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var entry JournalEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			if topic != "" && entry.Topic != topic {
				continue
			}
			acc = append(acc, entry)
			if 0 < limit && limit <= len(acc) {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return acc, nil
}
