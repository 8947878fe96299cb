// Package session implements the filesystem-backed session store.
//
// A session is a directory tree holding every artifact of one dubbing run:
// the original audio, separated stems, diarization JSONs, per-segment
// synthesis output, and an append-only metadata.json. The store exclusively
// owns these files; other components read through it and write only via its
// atomic artifact writers and merge-on-write metadata operations.
//
// The append-only invariant: no metadata writer may drop keys another writer
// added. Every mutation is load → deep-merge → atomic rewrite under a
// per-session lock.
package session

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned when a session or artifact does not exist.
var ErrNotFound = errors.New("session: not found")

// idAlphabet is the character set for generated session ids.
const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// idLength is the random suffix length of a session id.
const idLength = 10

// IDPrefix is the fixed prefix of every session id.
const IDPrefix = "session_"

// subdirs created for every new session.
var subdirs = []string{"audio", "music", "synthesis", "translation", "tool_outputs"}

// Store manages session directories under a single root.
// All methods are safe for concurrent use.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store rooted at dir, creating the directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("session: root dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create root %q: %w", dir, err)
	}
	return &Store{
		root:  dir,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// lock returns the per-session mutex, creating it on first use.
func (s *Store) lock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// NewID generates a fresh session id: the fixed prefix plus ten random
// lowercase alphanumerics.
func NewID() (string, error) {
	buf := make([]byte, idLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session: generate id: %w", err)
	}
	var b strings.Builder
	b.WriteString(IDPrefix)
	for _, c := range buf {
		b.WriteByte(idAlphabet[int(c)%len(idAlphabet)])
	}
	return b.String(), nil
}

// ValidID reports whether id has the canonical session id shape.
func ValidID(id string) bool {
	if !strings.HasPrefix(id, IDPrefix) {
		return false
	}
	suffix := id[len(IDPrefix):]
	if len(suffix) != idLength {
		return false
	}
	for _, r := range suffix {
		if !strings.ContainsRune(idAlphabet, r) {
			return false
		}
	}
	return true
}

// Create creates a session directory tree. With an empty id a fresh one is
// generated. Returns the session id. Creating an existing session is an
// error.
func (s *Store) Create(id string) (string, error) {
	if id == "" {
		var err error
		id, err = NewID()
		if err != nil {
			return "", err
		}
	} else if !ValidID(id) {
		return "", fmt.Errorf("session: invalid id %q", id)
	}

	dir := filepath.Join(s.root, id)
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("session: %q already exists", id)
	}
	for _, sub := range subdirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("session: create %q: %w", id, err)
		}
	}
	if err := s.writeMetadataLocked(id, map[string]any{}); err != nil {
		return "", err
	}
	slog.Info("session created", "session", id)
	return id, nil
}

// Exists reports whether the session directory is present.
func (s *Store) Exists(id string) bool {
	info, err := os.Stat(filepath.Join(s.root, id))
	return err == nil && info.IsDir()
}

// Delete removes the whole session tree. This is the only way session data
// is ever destroyed.
func (s *Store) Delete(id string) error {
	l := s.lock(id)
	l.Lock()
	defer l.Unlock()
	if !s.Exists(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := os.RemoveAll(filepath.Join(s.root, id)); err != nil {
		return fmt.Errorf("session: delete %q: %w", id, err)
	}
	slog.Info("session deleted", "session", id)
	return nil
}

// Path resolves a session-relative path to an absolute one. It does not
// check existence.
func (s *Store) Path(id string, elem ...string) string {
	parts := append([]string{s.root, id}, elem...)
	return filepath.Join(parts...)
}

// ReadArtifact returns the bytes of a session-relative file.
func (s *Store) ReadArtifact(id, relpath string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(id, relpath))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, id, relpath)
	}
	if err != nil {
		return nil, fmt.Errorf("session: read %s/%s: %w", id, relpath, err)
	}
	return data, nil
}

// WriteArtifact writes bytes to a session-relative path atomically: the data
// lands in a temp file in the target directory and is renamed into place.
// Parent directories are created as needed.
func (s *Store) WriteArtifact(id, relpath string, data []byte) error {
	target := s.Path(id, relpath)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("session: mkdir for %s/%s: %w", id, relpath, err)
	}
	return atomicWrite(target, data)
}

// ReadJSON unmarshals a session-relative JSON artifact into v.
func (s *Store) ReadJSON(id, relpath string, v any) error {
	data, err := s.ReadArtifact(id, relpath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("session: decode %s/%s: %w", id, relpath, err)
	}
	return nil
}

// WriteJSON marshals v with indentation and writes it atomically. Indented
// output keeps artifacts diffable and byte-stable across no-op rewrites.
func (s *Store) WriteJSON(id, relpath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode %s/%s: %w", id, relpath, err)
	}
	return s.WriteArtifact(id, relpath, append(data, '\n'))
}

// atomicWrite writes data to path via temp file + rename.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("session: create temp in %q: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("session: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("session: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("session: rename into place: %w", err)
	}
	return nil
}
