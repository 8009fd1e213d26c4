package state

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/rs/zerolog"

	"github.com/nholik/openstack-service-checks/internal/fsutil"
)

// FileStore persists state as JSON on disk.
type FileStore struct {
	path   string
	logger zerolog.Logger
}

// NewFileStore returns a JSON-backed state store.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger,
	}
}

// Load reads state from disk and upgrades it. Missing or corrupt files return an empty state with a warning.
func (s *FileStore) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Str("path", s.path).Msg("state file missing, starting fresh")
			return New(), nil
		}
		return State{}, err
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn().Str("path", s.path).Err(err).Msg("state file corrupt, starting fresh")
		return New(), nil
	}

	st, upgraded := Upgrade(st)
	if upgraded {
		s.logger.Info().Str("path", s.path).Int("version", st.Version).Msg("state upgraded")
	}
	return st, nil
}

// Save writes state to disk atomically. The file holds a password, so it is private to the owner.
func (s *FileStore) Save(ctx context.Context, st State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st.Registered == nil {
		st.Registered = Registered{}
	}
	if st.Fingerprints == nil {
		st.Fingerprints = map[string]string{}
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	_, err = fsutil.WriteFileAtomic(s.path, append(data, '\n'), 0o600)
	return err
}
