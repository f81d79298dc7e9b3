// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets resolves medassist credentials.
//
// A credential is read from a file in the secrets directory (the file name
// is the key, the trimmed contents the value) or, failing that, from its
// environment variable. Only the keys listed here are recognised; other
// files in the directory are ignored.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/medassist/pkg/types"
)

// Credential names.
const (
	OpenAIAPIKey      = "openai-api-key"
	GeminiAPIKey      = "gemini-api-key"
	HuggingFaceAPIKey = "huggingface-api-key"
	NCBIAPIKey        = "ncbi-api-key"
	NCBIEmail         = "ncbi-email"
)

// Source values reported by Store.Source.
const (
	SourceFile = "file"
	SourceEnv  = "env"
)

var envVars = map[string]string{
	OpenAIAPIKey:      "OPENAI_API_KEY",
	GeminiAPIKey:      "GEMINI_API_KEY",
	HuggingFaceAPIKey: "HUGGINGFACE_API_KEY",
	NCBIAPIKey:        "NCBI_API_KEY",
	NCBIEmail:         "NCBI_EMAIL",
}

var providerKeys = map[types.ProviderID]string{
	types.ProviderOpenAI:      OpenAIAPIKey,
	types.ProviderGemini:      GeminiAPIKey,
	types.ProviderHuggingFace: HuggingFaceAPIKey,
}

// ProviderKey returns the credential holding the API key for id. Providers
// that take no key report false.
func ProviderKey(id types.ProviderID) (string, bool) {
	k, ok := providerKeys[id]
	return k, ok
}

// EnvVar returns the environment variable that may carry name.
func EnvVar(name string) (string, bool) {
	v, ok := envVars[name]
	return v, ok
}

// Store holds the credentials found on disk and falls back to the
// environment for the rest.
type Store struct {
	files   map[string]string
	ignored []string
	getenv  func(string) string
}

// Option customizes a Store.
type Option func(*Store)

// WithGetenv replaces os.Getenv.
func WithGetenv(fn func(string) string) Option {
	return func(s *Store) { s.getenv = fn }
}

// FromValues returns a Store whose file-sourced credentials are values.
// Unknown names are dropped.
func FromValues(values map[string]string, opts ...Option) *Store {
	s := newStore(opts)
	for name, v := range values {
		if _, ok := envVars[name]; ok && strings.TrimSpace(v) != "" {
			s.files[name] = strings.TrimSpace(v)
		}
	}
	return s
}

// Load reads the known credential files in dir. A missing directory or a
// missing file is not an error. An unreadable file is logged and skipped.
func Load(dir string, opts ...Option) (*Store, error) {
	s := newStore(opts)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if _, ok := envVars[name]; !ok {
			s.ignored = append(s.ignored, name)
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("could not read secret", slog.String("name", name), slog.Any("error", err))
			continue
		}
		if v := strings.TrimSpace(string(data)); v != "" {
			s.files[name] = v
		}
	}
	sort.Strings(s.ignored)
	return s, nil
}

func newStore(opts []Option) *Store {
	s := &Store{files: make(map[string]string), getenv: os.Getenv}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns the credential name from its file, then from its
// environment variable. Unknown or unset credentials are empty.
func (s *Store) Get(name string) string {
	v, _ := s.lookup(name)
	return v
}

// Source reports where Get found name: SourceFile, SourceEnv or "".
func (s *Store) Source(name string) string {
	_, src := s.lookup(name)
	return src
}

func (s *Store) lookup(name string) (string, string) {
	if v, ok := s.files[name]; ok {
		return v, SourceFile
	}
	env, ok := envVars[name]
	if !ok {
		return "", ""
	}
	if v := strings.TrimSpace(s.getenv(env)); v != "" {
		return v, SourceEnv
	}
	return "", ""
}

// Loaded returns the credential names read from files, sorted.
func (s *Store) Loaded() []string {
	out := make([]string, 0, len(s.files))
	for k := range s.files {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Ignored returns files in the secrets directory that name no credential.
func (s *Store) Ignored() []string {
	return s.ignored
}

// Apply fills the provider API keys and NCBI credentials that cfg leaves
// empty. Values already in cfg win.
func (s *Store) Apply(cfg *types.Config) {
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.APIKey != "" {
			continue
		}
		if name, ok := ProviderKey(p.ID); ok {
			p.APIKey = s.Get(name)
		}
	}
	if cfg.PubMed.APIKey == "" {
		cfg.PubMed.APIKey = s.Get(NCBIAPIKey)
	}
	if cfg.PubMed.Email == "" {
		cfg.PubMed.Email = s.Get(NCBIEmail)
	}
}
