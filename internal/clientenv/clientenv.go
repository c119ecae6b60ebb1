// Package clientenv publishes the subset of environment variables that browser
// code is allowed to see. A variable is public only when its name starts with
// one of the configured prefixes.
package clientenv

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// ErrEmptyPrefix is returned when a prefix list contains "". An empty prefix
// would publish every variable, secrets included.
var ErrEmptyPrefix = errors.New("env prefix must not be empty")

// Filter returns the entries of env whose key starts with one of prefixes.
func Filter(env map[string]string, prefixes []string) map[string]string {
	out := make(map[string]string)
	for k, v := range env {
		for _, p := range prefixes {
			if strings.HasPrefix(k, p) {
				out[k] = v
				break
			}
		}
	}
	return out
}

// Loader builds a snapshot from the .env files in Dir and the process environment.
type Loader struct {
	Dir      string
	Mode     string
	Prefixes []string

	// Environ defaults to os.Environ.
	Environ func() []string
}

// NewLoader validates prefixes and returns a Loader.
func NewLoader(dir, mode string, prefixes []string) (*Loader, error) {
	if len(prefixes) == 0 {
		return nil, ErrEmptyPrefix
	}
	for _, p := range prefixes {
		if p == "" {
			return nil, ErrEmptyPrefix
		}
	}
	return &Loader{Dir: dir, Mode: mode, Prefixes: prefixes, Environ: os.Environ}, nil
}

// Files returns the .env files read for the loader's mode, lowest priority
// first.
func (l *Loader) Files() []string {
	names := []string{".env", ".env.local"}
	if l.Mode != "" {
		names = append(names, ".env."+l.Mode, ".env."+l.Mode+".local")
	}
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(l.Dir, n)
	}
	return paths
}

// Load reads every existing file from Files in order, then overlays the
// process environment, and returns the filtered result. Missing files are
// skipped.
func (l *Loader) Load() (map[string]string, error) {
	merged := make(map[string]string)
	for _, path := range l.Files() {
		vals, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for k, v := range vals {
			merged[k] = v
		}
	}

	environ := l.Environ
	if environ == nil {
		environ = os.Environ
	}
	for _, kv := range environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			merged[k] = v
		}
	}

	return Filter(merged, l.Prefixes), nil
}

// Store holds the current public env snapshot.
type Store struct {
	loader *Loader
	logger *slog.Logger

	mu   sync.RWMutex
	vars map[string]string
}

// NewStore loads an initial snapshot.
func NewStore(loader *Loader, logger *slog.Logger) (*Store, error) {
	s := &Store{loader: loader, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the env files. On error the previous snapshot is kept.
func (s *Store) Reload() error {
	vars, err := s.loader.Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.vars = vars
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current variables.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// Handler serves the snapshot as a JSON object.
func (s *Store) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(s.Snapshot()); err != nil && s.logger != nil {
			s.logger.Warn("encoding client env", "error", err)
		}
	}
}
