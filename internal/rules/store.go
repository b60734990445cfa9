package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultCacheTTL bounds how long a parsed rule-set file is served from
// cache before the next load re-reads it from disk
const DefaultCacheTTL = 5 * time.Minute

//go:embed defaults.yaml
var defaultRuleSetYAML []byte

// Store loads, validates and registers rule sets by name. Registered sets
// are immutable; concurrent evaluations may share them freely. The
// file-load cache is the only mutable state and is guarded separately.
type Store struct {
	mu   sync.RWMutex
	sets map[string]*RuleSet

	ttl time.Duration
	now func() time.Time

	cacheMu   sync.Mutex
	fileCache map[string]cacheEntry
}

type cacheEntry struct {
	set      *RuleSet
	loadedAt time.Time
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithCacheTTL overrides the file-load cache TTL
func WithCacheTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.ttl = ttl }
}

// WithClock injects the time source used for cache expiry, so tests can
// control it deterministically
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty rule-set store
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		sets:      make(map[string]*RuleSet),
		ttl:       DefaultCacheTTL,
		now:       time.Now,
		fileCache: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadRuleSetFromContent parses YAML text, validates it against the rule
// set schema and registers the result. The name parameter overrides the
// set's own declared name when non-empty. Malformed YAML yields a
// *ParseError; a well-formed document with the wrong shape yields a
// *SchemaError carrying every violation found.
func (s *Store) LoadRuleSetFromContent(content []byte, name string) (*RuleSet, error) {
	var doc interface{}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, &ParseError{Source: name, Cause: err}
	}

	violations := validateDocument(doc)

	var rs RuleSet
	if err := yaml.Unmarshal(content, &rs); err != nil {
		// The document is well-formed YAML at this point, so a failed
		// typed unmarshal means the shape is wrong, not the syntax.
		// Surface it as a schema failure alongside the structural
		// violations already collected.
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			for _, msg := range typeErr.Errors {
				violations = append(violations, Violation{Path: "(document)", Message: msg})
			}
			return nil, &SchemaError{Source: name, Violations: violations}
		}
		return nil, &ParseError{Source: name, Cause: err}
	}
	violations = append(violations, validateSemantics(&rs)...)

	if len(violations) > 0 {
		return nil, &SchemaError{Source: name, Violations: violations}
	}

	if name != "" {
		rs.Meta.Name = name
	}

	s.mu.Lock()
	s.sets[rs.Meta.Name] = &rs
	s.mu.Unlock()

	return &rs, nil
}

// LoadRuleSet reads a rule-set file from disk and delegates to the content
// loader. A missing path yields a *NotFoundError, distinct from parse and
// schema failures.
func (s *Store) LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: path, Cause: err}
		}
		return nil, fmt.Errorf("failed to read rule set %s: %w", path, err)
	}
	rs, err := s.LoadRuleSetFromContent(data, "")
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Source = path
		}
		if se, ok := err.(*SchemaError); ok {
			se.Source = path
		}
		return nil, err
	}
	return rs, nil
}

// LoadRuleSetCached loads a rule-set file through the TTL cache. The cache
// is invalidated by expiry only, never by content change detection; callers
// needing fresh config must ClearCache. A race where two callers both
// observe expiry re-parses idempotently, so no extra locking is held
// across the disk read.
func (s *Store) LoadRuleSetCached(path string) (*RuleSet, error) {
	s.cacheMu.Lock()
	entry, ok := s.fileCache[path]
	s.cacheMu.Unlock()

	if ok && s.now().Sub(entry.loadedAt) < s.ttl {
		return entry.set, nil
	}

	rs, err := s.LoadRuleSet(path)
	if err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	s.fileCache[path] = cacheEntry{set: rs, loadedAt: s.now()}
	s.cacheMu.Unlock()

	return rs, nil
}

// ClearCache drops all cached file loads
func (s *Store) ClearCache() {
	s.cacheMu.Lock()
	s.fileCache = make(map[string]cacheEntry)
	s.cacheMu.Unlock()
}

// LoadRuleSetsFromDirectory loads every .yaml/.yml file in a directory.
// A malformed file is logged and skipped; it never aborts loading of the
// remaining files.
func (s *Store) LoadRuleSetsFromDirectory(dir string) ([]*RuleSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: dir, Cause: err}
		}
		return nil, fmt.Errorf("failed to read rule set directory %s: %w", dir, err)
	}

	var loaded []*RuleSet
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		rs, err := s.LoadRuleSet(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Printf("WARNING: skipping rule set file %s: %v", entry.Name(), err)
			continue
		}
		loaded = append(loaded, rs)
	}

	return loaded, nil
}

// LoadDefaultRuleSet loads the embedded default AEO rule set
func (s *Store) LoadDefaultRuleSet() (*RuleSet, error) {
	return s.LoadRuleSetFromContent(defaultRuleSetYAML, "")
}

// GetRuleSet returns a registered rule set by name
func (s *Store) GetRuleSet(name string) (*RuleSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.sets[name]
	return rs, ok
}

// LoadedRuleSets returns every registered rule set, ordered by name for
// reproducible multi-set evaluation
func (s *Store) LoadedRuleSets() []*RuleSet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.sets))
	for name := range s.sets {
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]*RuleSet, 0, len(names))
	for _, name := range names {
		sets = append(sets, s.sets[name])
	}
	return sets
}

// RemoveRuleSet deregisters a rule set, reporting whether it existed
func (s *Store) RemoveRuleSet(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sets[name]
	delete(s.sets, name)
	return ok
}

// ClearRuleSets deregisters every rule set
func (s *Store) ClearRuleSets() {
	s.mu.Lock()
	s.sets = make(map[string]*RuleSet)
	s.mu.Unlock()
}

// MarshalRuleSet serializes a rule set back to its YAML exchange shape.
// A marshaled set reloaded via LoadRuleSetFromContent validates
// identically (round-trip property).
func MarshalRuleSet(rs *RuleSet) ([]byte, error) {
	data, err := yaml.Marshal(rs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rule set %s: %w", rs.Meta.Name, err)
	}
	return data, nil
}
