package session

import (
	"fmt"
	"log/slog"
	"reflect"
)

// metadataFile is the session metadata document name.
const metadataFile = "metadata.json"

// Get returns the full metadata document. A missing document yields an
// empty map so callers never need a nil check.
func (s *Store) Get(id string) (map[string]any, error) {
	l := s.lock(id)
	l.Lock()
	defer l.Unlock()
	return s.readMetadataLocked(id)
}

// GetField returns metadata[key], or def when the key is absent.
func (s *Store) GetField(id, key string, def any) (any, error) {
	meta, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if v, ok := meta[key]; ok {
		return v, nil
	}
	return def, nil
}

// UpdateField sets one top-level metadata key.
func (s *Store) UpdateField(id, key string, value any) error {
	return s.Update(id, map[string]any{key: value})
}

// UpdateSection deep-merges values into the named nested section.
func (s *Store) UpdateSection(id, name string, values map[string]any) error {
	return s.Update(id, map[string]any{name: values})
}

// Update deep-merges updates into the metadata document and rewrites it
// atomically. Existing keys absent from updates are preserved — this is the
// append-only invariant every writer goes through. Changed fields are logged
// old → new.
func (s *Store) Update(id string, updates map[string]any) error {
	l := s.lock(id)
	l.Lock()
	defer l.Unlock()

	meta, err := s.readMetadataLocked(id)
	if err != nil {
		return err
	}

	logChanges(id, meta, updates)
	merged := deepMerge(meta, updates)
	return s.writeMetadataLocked(id, merged)
}

// readMetadataLocked loads metadata.json. Caller must hold the session lock.
func (s *Store) readMetadataLocked(id string) (map[string]any, error) {
	if !s.Exists(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	meta := map[string]any{}
	if err := s.ReadJSON(id, metadataFile, &meta); err != nil {
		// A session created by an older run may predate metadata.json.
		return map[string]any{}, nil
	}
	return meta, nil
}

// writeMetadataLocked persists the document. Caller must hold the session
// lock (or be the only party that can see the session, as in Create).
func (s *Store) writeMetadataLocked(id string, meta map[string]any) error {
	return s.WriteJSON(id, metadataFile, meta)
}

// deepMerge returns dst with src merged in. Nested maps merge recursively;
// any other value in src replaces the destination. dst is modified in place
// and returned for convenience.
func deepMerge(dst, src map[string]any) map[string]any {
	for k, sv := range src {
		if sm, ok := sv.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				dst[k] = deepMerge(dm, sm)
				continue
			}
			// Copy so later mutations of src do not alias the document.
			dst[k] = deepMerge(map[string]any{}, sm)
			continue
		}
		dst[k] = sv
	}
	return dst
}

// logChanges logs old → new for top-level keys that will change.
func logChanges(id string, old, updates map[string]any) {
	for k, nv := range updates {
		ov, had := old[k]
		if !had {
			slog.Debug("metadata field added", "session", id, "key", k)
			continue
		}
		if !reflect.DeepEqual(ov, nv) {
			slog.Debug("metadata field changed", "session", id, "key", k, "old", ov, "new", nv)
		}
	}
}
