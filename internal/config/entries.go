package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	ErrDuplicateHost = errors.New("a printer with this host is already configured")
	ErrEntryNotFound = errors.New("config entry not found")
)

// EntryData is what the setup wizard collected
type EntryData struct {
	Host          string `json:"host"`
	Name          string `json:"name"`
	ColumnsFontA  int    `json:"columns_font_a"`
	ColumnsFontB  int    `json:"columns_font_b"`
	ImageMaxWidth int    `json:"image_max_width"`
}

// EntryOptions are edited after setup. Zero values fall back to the entry data.
type EntryOptions struct {
	ColumnsFontA  int `json:"columns_font_a,omitempty"`
	ColumnsFontB  int `json:"columns_font_b,omitempty"`
	ImageMaxWidth int `json:"image_max_width,omitempty"`
}

// Entry is one configured printer
type Entry struct {
	ID      string       `json:"entry_id"`
	Title   string       `json:"title"`
	Data    EntryData    `json:"data"`
	Options EntryOptions `json:"options"`
}

// Settings are the effective printer settings of an entry
type Settings struct {
	ColumnsFontA  int
	ColumnsFontB  int
	ImageMaxWidth int
}

// Settings merges options over data
func (e Entry) Settings() Settings {
	s := Settings{
		ColumnsFontA:  e.Data.ColumnsFontA,
		ColumnsFontB:  e.Data.ColumnsFontB,
		ImageMaxWidth: e.Data.ImageMaxWidth,
	}
	if e.Options.ColumnsFontA > 0 {
		s.ColumnsFontA = e.Options.ColumnsFontA
	}
	if e.Options.ColumnsFontB > 0 {
		s.ColumnsFontB = e.Options.ColumnsFontB
	}
	if e.Options.ImageMaxWidth > 0 {
		s.ImageMaxWidth = e.Options.ImageMaxWidth
	}
	return s
}

// Store persists config entries in a JSON file. It is safe for concurrent use.
type Store struct {
	path string

	mu      sync.Mutex
	entries map[string]Entry
}

// OpenStore loads the entries at path. A missing file is an empty store.
func OpenStore(path string) (*Store, error) {
	s := &Store{path: path, entries: map[string]Entry{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	for _, e := range entries {
		s.entries[e.ID] = e
	}
	return s, nil
}

// Entries returns all entries ordered by title then id
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted()
}

func (s *Store) sorted() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return e, ok
}

// FindByHost looks an entry up by its host. Hosts compare case-insensitively.
func (s *Store) FindByHost(host string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findByHost(host)
}

func (s *Store) findByHost(host string) (Entry, bool) {
	host = normalizeHost(host)
	for _, e := range s.entries {
		if normalizeHost(e.Data.Host) == host {
			return e, true
		}
	}
	return Entry{}, false
}

// Add stores a new entry, assigning an id when it has none.
// It returns ErrDuplicateHost when the host is already configured.
func (s *Store) Add(e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.findByHost(e.Data.Host); ok {
		return Entry{}, ErrDuplicateHost
	}
	if e.ID == "" {
		id, err := newID()
		if err != nil {
			return Entry{}, err
		}
		e.ID = id
	}
	if e.Title == "" {
		e.Title = e.Data.Name
	}

	s.entries[e.ID] = e
	if err := s.save(); err != nil {
		delete(s.entries, e.ID)
		return Entry{}, err
	}
	return e, nil
}

// Update replaces an existing entry
func (s *Store) Update(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.entries[e.ID]
	if !ok {
		return ErrEntryNotFound
	}
	s.entries[e.ID] = e
	if err := s.save(); err != nil {
		s.entries[e.ID] = old
		return err
	}
	return nil
}

func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	delete(s.entries, id)
	if err := s.save(); err != nil {
		s.entries[id] = old
		return err
	}
	return nil
}

// save must be called with mu held
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.sorted(), "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}

func newID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
