package prefs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lev "github.com/agnivade/levenshtein"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const setFileExt = ".yaml"

type setFile struct {
	Components []Component `yaml:"components"`
}

// Store persists each set as <dir>/<set>.yaml and caches what it has read.
// A missing file means the factory defaults.
type Store struct {
	dir string

	mu    sync.RWMutex
	cache map[string][]Component
}

// NewStore returns a Store rooted at dir. The directory is created on first Save.
func NewStore(dir string) *Store {
	return &Store{dir: dir, cache: make(map[string][]Component)}
}

// Dir returns the directory the sets live in.
func (s *Store) Dir() string {
	return s.dir
}

// Purpose: Load a component set, falling back to defaults.
// Key aspects: Cached until Save or a file change seen by Watch; unknown ids
// in the file are logged with a suggestion and dropped.
// Upstream: fields.Builder, cellctl prefs.
// Downstream: os.ReadFile, yaml.Unmarshal, normalize.
func (s *Store) Load(set string) ([]Component, error) {
	if _, err := Defaults(set); err != nil {
		return nil, err
	}
	s.mu.RLock()
	cached, ok := s.cache[set]
	s.mu.RUnlock()
	if ok {
		return clone(cached), nil
	}

	list, err := s.read(set)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[set] = list
	s.mu.Unlock()
	return clone(list), nil
}

func (s *Store) read(set string) ([]Component, error) {
	bs, err := os.ReadFile(s.path(set))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Defaults(set)
		}
		return nil, fmt.Errorf("prefs: read %s: %w", set, err)
	}
	var file setFile
	if err := yaml.Unmarshal(bs, &file); err != nil {
		return nil, fmt.Errorf("prefs: parse %s: %w", set, err)
	}
	if len(file.Components) == 0 {
		return Defaults(set)
	}
	list, unknown := normalize(set, file.Components)
	for _, id := range unknown {
		if guess, ok := Suggest(set, id); ok {
			log.Printf("Prefs: %s: ignoring unknown field %q (did you mean %q?)", set, id, guess)
		} else {
			log.Printf("Prefs: %s: ignoring unknown field %q", set, id)
		}
	}
	return list, nil
}

// Save writes a set to disk and refreshes the cache.
func (s *Store) Save(set string, list []Component) error {
	if _, err := Defaults(set); err != nil {
		return err
	}
	list, _ = normalize(set, list)
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("prefs: ensure directory: %w", err)
	}
	bs, err := yaml.Marshal(setFile{Components: list})
	if err != nil {
		return fmt.Errorf("prefs: encode %s: %w", set, err)
	}
	if err := os.WriteFile(s.path(set), bs, 0o644); err != nil {
		return fmt.Errorf("prefs: write %s: %w", set, err)
	}
	s.mu.Lock()
	s.cache[set] = clone(list)
	s.mu.Unlock()
	return nil
}

// ToggleEnabled flips one component's visibility and persists the set. The
// component may be named by id or label.
func (s *Store) ToggleEnabled(set, id string) ([]Component, error) {
	list, err := s.Load(set)
	if err != nil {
		return nil, err
	}
	if resolved, found := Lookup(set, id); found {
		id = resolved
	}
	list, ok := Toggle(list, id)
	if !ok {
		if guess, found := Suggest(set, id); found {
			return nil, fmt.Errorf("prefs: %s has no field %q (did you mean %q?)", set, id, guess)
		}
		return nil, fmt.Errorf("prefs: %s has no field %q", set, id)
	}
	if err := s.Save(set, list); err != nil {
		return nil, err
	}
	return list, nil
}

// Reorder moves one component and persists the set.
func (s *Store) Reorder(set string, from, to int) ([]Component, error) {
	list, err := s.Load(set)
	if err != nil {
		return nil, err
	}
	list, err = Move(list, from, to)
	if err != nil {
		return nil, err
	}
	if err := s.Save(set, list); err != nil {
		return nil, err
	}
	return list, nil
}

// Reset restores a set to its defaults and persists it.
func (s *Store) Reset(set string) ([]Component, error) {
	list, err := Defaults(set)
	if err != nil {
		return nil, err
	}
	if err := s.Save(set, list); err != nil {
		return nil, err
	}
	return list, nil
}

// Invalidate drops the cached copy of a set so the next Load rereads it.
func (s *Store) Invalidate(set string) {
	s.mu.Lock()
	delete(s.cache, set)
	s.mu.Unlock()
}

// Purpose: Reload sets edited outside the process.
// Key aspects: Watches the directory (created if needed), invalidates the
// cache for any changed set file and calls onChange with the set name.
// Returns once the watch is installed; stops when ctx is done.
// Upstream: main.go when prefs.watch is enabled.
// Downstream: fsnotify.
func (s *Store) Watch(ctx context.Context, onChange func(set string)) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("prefs: ensure directory: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("prefs: watcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("prefs: watch %s: %w", s.dir, err)
	}
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				set, ok := setFromPath(event.Name)
				if !ok {
					continue
				}
				s.Invalidate(set)
				if onChange != nil {
					onChange(set)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("Prefs: watcher error: %v", err)
			}
		}
	}()
	return nil
}

func (s *Store) path(set string) string {
	return filepath.Join(s.dir, set+setFileExt)
}

func setFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, setFileExt) {
		return "", false
	}
	name := strings.TrimSuffix(base, setFileExt)
	for _, set := range SetNames() {
		if set == name {
			return set, true
		}
	}
	return "", false
}

// Suggest returns the field id in a set closest to a mistyped one, when the
// edit distance is small enough to be a plausible typo.
func Suggest(set, id string) (string, bool) {
	defaults, err := Defaults(set)
	if err != nil {
		return "", false
	}
	needle := strings.ToLower(strings.TrimSpace(id))
	if needle == "" {
		return "", false
	}
	best := ""
	bestDist := -1
	for _, c := range defaults {
		for _, candidate := range []string{c.ID, strings.ToLower(c.Label)} {
			d := lev.ComputeDistance(needle, candidate)
			if bestDist < 0 || d < bestDist {
				best, bestDist = c.ID, d
			}
		}
	}
	limit := len(needle) / 3
	if limit < 1 {
		limit = 1
	}
	if limit > 3 {
		limit = 3
	}
	if bestDist < 0 || bestDist > limit {
		return "", false
	}
	return best, true
}

// Lookup resolves a field reference by id or case-insensitive label.
func Lookup(set, ref string) (string, bool) {
	defaults, err := Defaults(set)
	if err != nil {
		return "", false
	}
	ref = strings.TrimSpace(ref)
	for _, c := range defaults {
		if c.ID == ref || strings.EqualFold(c.Label, ref) {
			return c.ID, true
		}
	}
	return "", false
}
