package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var stateBucketName = []byte("openstack-service-checks")

// BoltStore persists each top-level state field under its own key in a bbolt bucket.
type BoltStore struct {
	db     *bolt.DB
	logger zerolog.Logger
}

// OpenBoltStore opens (or creates) the database at path.
func OpenBoltStore(path string, logger zerolog.Logger) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	return &BoltStore{db: db, logger: logger}, nil
}

// Close releases the database file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Load reads every key of the bucket into State and upgrades it.
func (s *BoltStore) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}

	fields := map[string]json.RawMessage{}
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(stateBucketName)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			fields[string(k)] = append(json.RawMessage(nil), v...)
			return nil
		})
	})
	if err != nil {
		return State{}, fmt.Errorf("read state db: %w", err)
	}
	if len(fields) == 0 {
		s.logger.Warn().Str("path", s.db.Path()).Msg("state db empty, starting fresh")
		return New(), nil
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn().Str("path", s.db.Path()).Err(err).Msg("state db corrupt, starting fresh")
		return New(), nil
	}

	st, upgraded := Upgrade(st)
	if upgraded {
		s.logger.Info().Str("path", s.db.Path()).Int("version", st.Version).Msg("state upgraded")
	}
	return st, nil
}

// Save replaces the bucket content with st in one transaction.
func (s *BoltStore) Save(ctx context.Context, st State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(stateBucketName)
		if err != nil {
			return err
		}

		stale := make([][]byte, 0)
		if err := bucket.ForEach(func(k, _ []byte) error {
			if _, ok := fields[string(k)]; !ok {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, key := range stale {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}

		for key, value := range fields {
			if err := bucket.Put([]byte(key), value); err != nil {
				return err
			}
		}
		return nil
	})
}
