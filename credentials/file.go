package credentials

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	errs "github.com/manleysolutions/true911-portal/internal/errors"
)

var _ Store = (*FileStore)(nil)

// fileLayout is the on-disk shape of the credential cache. Absence of either
// key is equivalent to "no session".
type fileLayout struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// FileStore persists the pair to a JSON file so a CLI session survives
// process restarts. The in-memory copy is authoritative; disk writes that
// fail are logged and do not fail the caller, matching the Store contract
// of error-free synchronous writes.
type FileStore struct {
	mem  *MemoryStore
	path string
	log  zerolog.Logger
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithLogger sets the logger used to report disk I/O problems.
func WithLogger(log zerolog.Logger) FileStoreOption {
	return func(fs *FileStore) {
		fs.log = log
	}
}

// NewFileStore loads any previously persisted pair from path. An unreadable
// file is treated as no session and reported at warn level rather than
// failing construction. A file holding an access token without a refresh
// token is loaded as-is; the next bootstrap check resolves whether that
// stale token is still good.
func NewFileStore(path string, options ...FileStoreOption) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("[NewFileStore] path is required")
	}

	fs := &FileStore{
		mem:  NewMemoryStore(),
		path: path,
		log:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(fs)
	}

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fs, nil
	case err != nil:
		fs.log.Warn().Err(err).Str("path", path).Msg("credential cache unreadable, starting unauthenticated")
		return fs, nil
	}

	var layout fileLayout
	if err := json.Unmarshal(b, &layout); err != nil {
		fs.log.Warn().Err(err).Str("path", path).Msg("credential cache corrupt, starting unauthenticated")
		return fs, nil
	}
	fs.mem.Set(layout.AccessToken, layout.RefreshToken)
	return fs, nil
}

// DefaultPath returns the per-user credential cache location,
// ~/.config/true911/credentials.json on unix-like systems.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errs.Wrapf(err, "resolve user config dir")
	}
	return filepath.Join(dir, "true911", "credentials.json"), nil
}

func (fs *FileStore) Get() Pair {
	return fs.mem.Get()
}

func (fs *FileStore) Set(access, refresh string) {
	fs.mem.Set(access, refresh)
	fs.persist()
}

func (fs *FileStore) Clear() {
	fs.mem.Clear()
	fs.persist()
}

// Path returns the file the store persists to.
func (fs *FileStore) Path() string {
	return fs.path
}

// persist writes the current pair via a temp file and rename so a crash
// mid-write never leaves a half-written cache. An empty pair removes the
// file entirely.
func (fs *FileStore) persist() {
	pair := fs.mem.Get()

	if pair.Empty() {
		if err := os.Remove(fs.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			fs.log.Warn().Err(err).Str("path", fs.path).Msg("failed to remove credential cache")
		}
		return
	}

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		fs.log.Warn().Err(err).Str("path", fs.path).Msg("failed to create credential cache directory")
		return
	}

	b, err := json.MarshalIndent(fileLayout{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "", "  ")
	if err != nil {
		fs.log.Warn().Err(err).Msg("failed to encode credential cache")
		return
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		fs.log.Warn().Err(err).Str("path", tmp).Msg("failed to write credential cache")
		return
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		fs.log.Warn().Err(err).Str("path", fs.path).Msg("failed to replace credential cache")
	}
}
