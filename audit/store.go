// Package audit keeps the log of every classification decision in a bbolt database.
package audit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/creativeprojects/imapfilter/lib"
	bolt "go.etcd.io/bbolt"
)

const (
	metadataBucket  = "metadata"
	decisionsBucket = "decisions"
	versionKey      = "version"
	boltFileVersion = 1
)

var (
	ErrVersion        = errors.New("unsupported audit file version")
	ErrNotInitialized = errors.New("audit file not initialized")
)

type Store struct {
	dbFile string
	db     *bolt.DB
	log    lib.Logger
}

func NewStore(filename string) (*Store, error) {
	return NewStoreWithLogger(filename, nil)
}

// NewStoreWithLogger opens (or creates) the audit file
func NewStoreWithLogger(filename string, logger lib.Logger) (*Store, error) {
	logger = lib.OrNoLog(logger)
	options := bolt.DefaultOptions
	options.Timeout = 10 * time.Second

	err := os.MkdirAll(filepath.Dir(filename), 0700)
	if err != nil {
		return nil, fmt.Errorf("cannot open %q: %w", filename, err)
	}

	db, err := bolt.Open(filename, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("cannot open %q: %w", filename, err)
	}

	store := &Store{
		dbFile: filename,
		db:     db,
		log:    logger,
	}
	if err = store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if data := bucket.Get([]byte(versionKey)); data != nil {
			version, err := DeserializeInt(data)
			if err != nil {
				return err
			}
			if version != boltFileVersion {
				return fmt.Errorf("%w: %d", ErrVersion, version)
			}
		} else {
			version, err := SerializeInt(boltFileVersion)
			if err != nil {
				return err
			}
			if err = bucket.Put([]byte(versionKey), version); err != nil {
				return err
			}
		}
		_, err = tx.CreateBucketIfNotExists([]byte(decisionsBucket))
		return err
	})
}

func (s *Store) Filename() string {
	return s.dbFile
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends a decision to the log
func (s *Store) Record(record Record) error {
	if record.Date.IsZero() {
		record.Date = time.Now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(decisionsBucket))
		if bucket == nil {
			return ErrNotInitialized
		}
		sequence, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("cannot get next sequence: %w", err)
		}
		data, err := SerializeObject(&record)
		if err != nil {
			return err
		}
		s.log.Printf("audit: %s", record)
		return bucket.Put(sequenceKey(sequence), data)
	})
}

// Last returns the latest decisions, oldest first. A limit of zero returns everything.
func (s *Store) Last(limit int) ([]Record, error) {
	records := make([]Record, 0, limit)
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(decisionsBucket))
		if bucket == nil {
			return nil
		}
		cursor := bucket.Cursor()
		for key, value := cursor.Last(); key != nil; key, value = cursor.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}
			record, err := DeserializeObject[Record](value)
			if err != nil {
				return fmt.Errorf("cannot read record %q: %w", key, err)
			}
			records = append(records, *record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// reverse
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Prune removes the decisions older than the date, and returns how many were removed
func (s *Store) Prune(before time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(decisionsBucket))
		if bucket == nil {
			return nil
		}
		keys := make([][]byte, 0)
		cursor := bucket.Cursor()
		for key, value := cursor.First(); key != nil; key, value = cursor.Next() {
			record, err := DeserializeObject[Record](value)
			if err != nil {
				return err
			}
			if !record.Date.Before(before) {
				// records are stored in chronological order
				break
			}
			keys = append(keys, append([]byte(nil), key...))
		}
		// deleting under a cursor would skip some keys
		for _, key := range keys {
			if err := bucket.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Backup writes a consistent copy of the database
func (s *Store) Backup(filename string) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(filename, 0600)
	})
}
