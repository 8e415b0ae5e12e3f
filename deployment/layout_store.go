package deployment

import (
	"encoding/binary"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/crytic/routerguard/analysis/storage"
	"github.com/crytic/routerguard/utils"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

// layoutsBucket is the root bucket holding one nested bucket of snapshots per layout key.
var layoutsBucket = []byte("layouts")

// LayoutSnapshot is the storage struct map of a build, saved under a key (typically a network or deployment name).
type LayoutSnapshot struct {
	// ID uniquely identifies the snapshot
	ID uuid.UUID `json:"id"`
	// Key is the layout key the snapshot was saved under
	Key string `json:"key"`
	// CreatedAt is the time the snapshot was saved
	CreatedAt time.Time `json:"createdAt"`
	// Entries is the storage struct map
	Entries []storage.StorageNamespaceEntry `json:"entries"`
}

// LayoutStore persists storage layout snapshots in a bbolt database. Snapshots saved under the same key are kept in
// insertion order, so the latest one is always the baseline the next build is compared against.
type LayoutStore struct {
	db *bbolt.DB
}

// OpenLayoutStore opens (or creates) the layout store at path.
func OpenLayoutStore(path string) (*LayoutStore, error) {
	if err := utils.MakeDirectory(filepath.Dir(path)); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "could not open layout store %s", path)
	}

	// create the root bucket if it doesn't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(layoutsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}
	return &LayoutStore{db: db}, nil
}

// Close closes the underlying database.
func (s *LayoutStore) Close() error {
	return errors.WithStack(s.db.Close())
}

// Save stores a new snapshot of entries under key and returns it.
func (s *LayoutStore) Save(key string, entries []storage.StorageNamespaceEntry) (*LayoutSnapshot, error) {
	if key == "" {
		return nil, errors.New("a layout key is required to save a snapshot")
	}
	snapshot := &LayoutSnapshot{
		ID:        uuid.New(),
		Key:       key,
		CreatedAt: time.Now().UTC(),
		Entries:   entries,
	}
	value, err := json.Marshal(snapshot)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket(layoutsBucket).CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}
		sequence, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		return bucket.Put(sequenceKey(sequence), value)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not save layout snapshot for %s", key)
	}
	return snapshot, nil
}

// Latest returns the most recently saved snapshot under key.
func (s *LayoutStore) Latest(key string) (*LayoutSnapshot, bool, error) {
	var snapshot *LayoutSnapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(layoutsBucket).Bucket([]byte(key))
		if bucket == nil {
			return nil
		}
		_, value := bucket.Cursor().Last()
		if value == nil {
			return nil
		}
		snapshot = &LayoutSnapshot{}
		return json.Unmarshal(value, snapshot)
	})
	if err != nil {
		return nil, false, errors.Wrapf(err, "could not read layout snapshot for %s", key)
	}
	return snapshot, snapshot != nil, nil
}

// History returns every snapshot saved under key, oldest first.
func (s *LayoutStore) History(key string) ([]LayoutSnapshot, error) {
	snapshots := make([]LayoutSnapshot, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(layoutsBucket).Bucket([]byte(key))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, value []byte) error {
			var snapshot LayoutSnapshot
			if err := json.Unmarshal(value, &snapshot); err != nil {
				return err
			}
			snapshots = append(snapshots, snapshot)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not read layout history for %s", key)
	}
	return snapshots, nil
}

// Keys returns every layout key with at least one snapshot, in byte order.
func (s *LayoutStore) Keys() ([]string, error) {
	keys := make([]string, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(layoutsBucket).ForEach(func(key, value []byte) error {
			// nested buckets have a nil value
			if value == nil {
				keys = append(keys, string(key))
			}
			return nil
		})
	})
	return keys, errors.WithStack(err)
}

// sequenceKey encodes a bucket sequence number so that byte order matches insertion order.
func sequenceKey(sequence uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, sequence)
	return key
}
