// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/medassist/pkg/types"
)

func envFrom(vars map[string]string) Option {
	return WithGetenv(func(k string) string { return vars[k] })
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(t *testing.T) string
		wantLoaded  []string
		wantIgnored []string
	}{
		{
			name: "reads known key files",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, OpenAIAPIKey, "  sk-abc123  \n")
				writeFile(t, dir, NCBIEmail, "user@example.com\n")
				return dir
			},
			wantLoaded: []string{NCBIEmail, OpenAIAPIKey},
		},
		{
			name: "missing directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			wantLoaded: []string{},
		},
		{
			name: "skips empty files",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, GeminiAPIKey, "   \n\t  ")
				writeFile(t, dir, HuggingFaceAPIKey, "hf_123")
				return dir
			},
			wantLoaded: []string{HuggingFaceAPIKey},
		},
		{
			name: "ignores unknown files, dotfiles and subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, ".gitkeep", "")
				writeFile(t, dir, "anthropic-api-key", "sk-other")
				writeFile(t, dir, NCBIAPIKey, "ncbi")
				require.NoError(t, os.Mkdir(filepath.Join(dir, OpenAIAPIKey+".d"), 0o755))
				return dir
			},
			wantLoaded:  []string{NCBIAPIKey},
			wantIgnored: []string{"anthropic-api-key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Load(tt.setup(t), envFrom(nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantLoaded, s.Loaded())
			assert.Equal(t, tt.wantIgnored, s.Ignored())
		})
	}
}

func TestLoadUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, NCBIEmail, "dev@example.org")
	badPath := filepath.Join(dir, OpenAIAPIKey)
	require.NoError(t, os.WriteFile(badPath, []byte("sk-secret"), 0o000))
	t.Cleanup(func() { os.Chmod(badPath, 0o644) })
	if _, err := os.ReadFile(badPath); err == nil {
		t.Skip("file permissions not enforced for this user")
	}

	s, err := Load(dir, envFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, "dev@example.org", s.Get(NCBIEmail))
	assert.Empty(t, s.Get(OpenAIAPIKey))
}

func TestGet_FileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, NCBIEmail, "file@example.org")
	s, err := Load(dir, envFrom(map[string]string{
		"NCBI_EMAIL":     "env@example.org",
		"OPENAI_API_KEY": " sk-env ",
		"UNRELATED":      "x",
	}))
	require.NoError(t, err)

	tests := []struct {
		name       string
		wantValue  string
		wantSource string
	}{
		{NCBIEmail, "file@example.org", SourceFile},
		{OpenAIAPIKey, "sk-env", SourceEnv},
		{GeminiAPIKey, "", ""},
		{"unknown", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantValue, s.Get(tt.name))
			assert.Equal(t, tt.wantSource, s.Source(tt.name))
		})
	}
}

func TestApply(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.Providers[1].APIKey = "from-config"
	s := FromValues(map[string]string{
		OpenAIAPIKey: "sk-test",
		GeminiAPIKey: "ignored",
		NCBIAPIKey:   "ncbi-key",
		"bogus":      "dropped",
	}, envFrom(map[string]string{"NCBI_EMAIL": "dev@example.org"}))

	s.Apply(&cfg)

	assert.Equal(t, "sk-test", cfg.Providers[0].APIKey)
	assert.Equal(t, "from-config", cfg.Providers[1].APIKey)
	assert.Empty(t, cfg.Providers[2].APIKey, "ollama takes no key")
	assert.Equal(t, "ncbi-key", cfg.PubMed.APIKey)
	assert.Equal(t, "dev@example.org", cfg.PubMed.Email)
	assert.Equal(t, []string{GeminiAPIKey, NCBIAPIKey, OpenAIAPIKey}, s.Loaded())
}

func TestProviderKey(t *testing.T) {
	k, ok := ProviderKey(types.ProviderHuggingFace)
	assert.True(t, ok)
	assert.Equal(t, HuggingFaceAPIKey, k)

	_, ok = ProviderKey(types.ProviderOllama)
	assert.False(t, ok)

	env, ok := EnvVar(k)
	assert.True(t, ok)
	assert.Equal(t, "HUGGINGFACE_API_KEY", env)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
