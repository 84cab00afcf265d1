// Package store connects to the data store and manages timer records and
// time entries.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/kanbo-app/kanbo/internal/models"
	"github.com/kanbo-app/kanbo/internal/timeutil"
)

const (
	timerBucket      = "timer"
	entriesBucket    = "entries"
	entryIndexBucket = "entries_index"
)

// indexSep separates the task id from the start time in index keys. Task
// ids are opaque strings but never contain a NUL byte in practice.
const indexSep = "\x00"

var pathToDB string

var errKanboRunning = errors.New(
	"is kanbo already running? Only one instance can be active at a time",
)

// Client is a BoltDB database client.
type Client struct {
	*bolt.DB
}

// SaveTimer writes the timer record. Any record stored for a different
// task is removed in the same transaction, so a successful save leaves
// exactly one record in the bucket.
func (c *Client) SaveTimer(state *models.TimerState) error {
	value, err := json.Marshal(state)
	if err != nil {
		return err
	}

	return c.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(timerBucket))

		var leftover [][]byte

		cur := b.Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			if string(k) != state.TaskID {
				leftover = append(leftover, append([]byte(nil), k...))
			}
		}

		for _, k := range leftover {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		return b.Put([]byte(state.TaskID), value)
	})
}

func (c *Client) GetActiveTimer() (*models.TimerState, error) {
	var state *models.TimerState

	err := c.View(func(tx *bolt.Tx) error {
		_, v := tx.Bucket([]byte(timerBucket)).Cursor().First()
		if len(v) == 0 {
			return nil
		}

		state = &models.TimerState{}

		return json.Unmarshal(v, state)
	})

	return state, err
}

func (c *Client) DeleteTimer(taskID string) error {
	return c.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(timerBucket)).Delete([]byte(taskID))
	})
}

// AppendEntry stores the entry keyed by its start time and records a
// (taskID, startTime) index pointing back at it.
func (c *Client) AppendEntry(
	entry *models.TimeEntry,
) (*models.TimeEntry, error) {
	e := *entry

	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	value, err := json.Marshal(&e)
	if err != nil {
		return nil, err
	}

	key := timeutil.ToKey(e.StartTime)

	err = c.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(entriesBucket)).Put(key, value); err != nil {
			return err
		}

		indexKey := []byte(e.TaskID + indexSep + string(key))

		return tx.Bucket([]byte(entryIndexBucket)).Put(indexKey, key)
	})
	if err != nil {
		return nil, err
	}

	return &e, nil
}

func (c *Client) GetEntries(
	startTime, endTime time.Time,
	taskIDs []string,
) ([]models.TimeEntry, error) {
	var b [][]byte

	min := timeutil.ToKey(startTime)
	max := timeutil.ToKey(endTime)

	err := c.View(func(tx *bolt.Tx) error {
		if len(taskIDs) != 0 {
			return collectByTask(tx, taskIDs, min, max, &b)
		}

		cur := tx.Bucket([]byte(entriesBucket)).Cursor()

		for k, v := cur.Seek(min); k != nil && bytes.Compare(k, max) <= 0; k, v = cur.Next() {
			b = append(b, v)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	var entries []models.TimeEntry

	for _, v := range b {
		var entry models.TimeEntry

		err = json.Unmarshal(v, &entry)
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// collectByTask walks the (taskID, startTime) index instead of scanning
// every entry.
func collectByTask(
	tx *bolt.Tx,
	taskIDs []string,
	min, max []byte,
	out *[][]byte,
) error {
	entries := tx.Bucket([]byte(entriesBucket))
	index := tx.Bucket([]byte(entryIndexBucket))

	for _, taskID := range taskIDs {
		prefix := []byte(taskID + indexSep)
		cur := index.Cursor()

		seek := append(append([]byte(nil), prefix...), min...)

		for k, entryKey := cur.Seek(seek); k != nil && bytes.HasPrefix(k, prefix); k, entryKey = cur.Next() {
			startKey := k[len(prefix):]
			if bytes.Compare(startKey, max) > 0 {
				break
			}

			if v := entries.Get(entryKey); v != nil {
				*out = append(*out, v)
			}
		}
	}

	return nil
}

func (c *Client) Open() error {
	db, err := openDB(pathToDB)
	if err != nil {
		return err
	}

	*c = Client{
		db,
	}

	return nil
}

// openDB creates or opens a database and locks it.
func openDB(pathToDB string) (*bolt.DB, error) {
	var fileMode fs.FileMode = 0o600

	db, err := bolt.Open(
		pathToDB,
		fileMode,
		&bolt.Options{Timeout: 1 * time.Second},
	)
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, errKanboRunning
		}

		return nil, err
	}

	return db, nil
}

// NewClient returns a wrapper to a BoltDB connection.
func NewClient(dbPath string) (*Client, error) {
	pathToDB = dbPath

	db, err := openDB(pathToDB)
	if err != nil {
		return nil, err
	}
	// Create the necessary buckets for storing data if they do not exist already
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{timerBucket, entriesBucket, entryIndexBucket} {
			_, err = tx.CreateBucketIfNotExists([]byte(name))
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		db,
	}, nil
}
