package scopes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/orthanc-kz/orthanc-harvester/internal/domain"
)

// Package scopes contains pluggable search-scope configs (YAML/JSON) helpers.
// A scope is one saved search on the origin: a city or complex filter plus a
// transaction kind, reconciled independently of every other scope.

type Scope struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Kind        string         `json:"kind" yaml:"kind"`
	SearchURL   string         `json:"search_url" yaml:"search_url"`
	MaxPages    int            `json:"max_pages" yaml:"max_pages"`
	MaxListings int            `json:"max_listings" yaml:"max_listings"`
	Config      map[string]any `json:"config" yaml:"config"`
}

type registry struct {
	Scopes []Scope `json:"scopes" yaml:"scopes"`
}

var (
	regMu      sync.RWMutex
	currentReg registry
	scopesIdx  map[string]Scope
)

// Scopes returns a copy of the currently loaded scopes registry.
func Scopes() []Scope {
	regMu.RLock()
	defer regMu.RUnlock()

	if len(currentReg.Scopes) == 0 {
		return nil
	}

	out := make([]Scope, len(currentReg.Scopes))
	copy(out, currentReg.Scopes)
	return out
}

// ScopeByID returns the scope entry for the given id, if loaded.
func ScopeByID(id string) (Scope, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Scope{}, false
	}

	regMu.RLock()
	defer regMu.RUnlock()

	if scopesIdx == nil {
		return Scope{}, false
	}

	s, ok := scopesIdx[id]
	return s, ok
}

// LoadScopes loads the scope registry from file.
func LoadScopes(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("scopes file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open scopes file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read scopes file: %w", err)
	}

	reg, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return err
	}

	if len(reg.Scopes) == 0 {
		return errors.New("scopes file contains no scope entries")
	}

	idx := make(map[string]Scope, len(reg.Scopes))
	for i := range reg.Scopes {
		s := sanitizeScope(reg.Scopes[i])
		if err := validateScope(s); err != nil {
			return fmt.Errorf("scope[%d]: %w", i, err)
		}
		if _, exists := idx[s.ID]; exists {
			return fmt.Errorf("duplicate scope id %q", s.ID)
		}
		reg.Scopes[i] = s
		idx[s.ID] = s
	}

	regMu.Lock()
	currentReg = reg
	scopesIdx = idx
	regMu.Unlock()

	return nil
}

func parseRegistry(data []byte, ext string) (registry, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		if reg, err := unmarshalRegistry(d.name, data, d.fn); err == nil {
			return reg, nil
		}
	}

	return registry{}, errors.New("scopes file format not recognized (expected YAML or JSON)")
}

type unmarshalFn func([]byte, any) error

func unmarshalRegistry(name string, data []byte, fn unmarshalFn) (registry, error) {
	var reg registry
	if err := fn(data, &reg); err != nil {
		return registry{}, fmt.Errorf("decode %s scopes: %w", name, err)
	}
	return reg, nil
}

func sanitizeScope(s Scope) Scope {
	s.ID = strings.TrimSpace(s.ID)
	s.Name = strings.TrimSpace(s.Name)
	s.Kind = strings.TrimSpace(s.Kind)
	s.SearchURL = strings.TrimSpace(s.SearchURL)

	if s.Config == nil {
		s.Config = map[string]any{}
	}
	if s.MaxPages < 0 {
		s.MaxPages = 0
	}
	if s.MaxListings < 0 {
		s.MaxListings = 0
	}

	return s
}

func validateScope(s Scope) error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Name == "" {
		return fmt.Errorf("name is required for scope %q", s.ID)
	}
	if s.SearchURL == "" {
		return fmt.Errorf("search_url is required for scope %q", s.ID)
	}
	if _, err := domain.ParseKind(s.Kind); err != nil {
		return fmt.Errorf("scope %q: %w", s.ID, err)
	}
	return nil
}

// TransactionKind returns the parsed kind; validation guarantees it parses
// for any loaded scope.
func (s Scope) TransactionKind() domain.TransactionKind {
	kind, err := domain.ParseKind(s.Kind)
	if err != nil {
		return domain.KindSale
	}
	return kind
}
