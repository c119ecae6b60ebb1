package clientenv_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/devgate/internal/clientenv"
)

var prefixes = []string{"VITE_", "OPENAI_LIKE_API_", "OLLAMA_API_BASE_URL", "LMSTUDIO_API_BASE_URL"}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
}

func newLoader(t *testing.T, dir, mode string, environ ...string) *clientenv.Loader {
	t.Helper()
	l, err := clientenv.NewLoader(dir, mode, prefixes)
	require.NoError(t, err)
	l.Environ = func() []string { return environ }
	return l
}

func TestFilter(t *testing.T) {
	env := map[string]string{
		"VITE_APP_NAME":            "bolt",
		"OPENAI_LIKE_API_KEY":      "k",
		"OLLAMA_API_BASE_URL":      "http://127.0.0.1:11434",
		"LMSTUDIO_API_BASE_URL_V2": "http://127.0.0.1:1234",
		"ANTHROPIC_API_KEY":        "secret",
		"vite_lowercase":           "no",
		"MY_VITE_NOT_PREFIX":       "no",
	}

	got := clientenv.Filter(env, prefixes)

	assert.Equal(t, map[string]string{
		"VITE_APP_NAME":            "bolt",
		"OPENAI_LIKE_API_KEY":      "k",
		"OLLAMA_API_BASE_URL":      "http://127.0.0.1:11434",
		"LMSTUDIO_API_BASE_URL_V2": "http://127.0.0.1:1234",
	}, got)
}

func TestNewLoader_RejectsEmptyPrefix(t *testing.T) {
	_, err := clientenv.NewLoader(".", "development", []string{"VITE_", ""})
	assert.ErrorIs(t, err, clientenv.ErrEmptyPrefix)

	_, err = clientenv.NewLoader(".", "development", nil)
	assert.ErrorIs(t, err, clientenv.ErrEmptyPrefix)
}

func TestLoader_Files(t *testing.T) {
	tests := []struct {
		mode string
		want []string
	}{
		{"development", []string{".env", ".env.local", ".env.development", ".env.development.local"}},
		{"production", []string{".env", ".env.local", ".env.production", ".env.production.local"}},
		{"test", []string{".env", ".env.local", ".env.test", ".env.test.local"}},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			l := newLoader(t, "/app", tt.mode)
			want := make([]string, len(tt.want))
			for i, n := range tt.want {
				want[i] = filepath.Join("/app", n)
			}
			assert.Equal(t, want, l.Files())
		})
	}
}

func TestLoader_Precedence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "VITE_A=env\nVITE_B=env\nVITE_C=env\nSECRET=hidden\n")
	writeFile(t, dir, ".env.local", "VITE_B=local\n")
	writeFile(t, dir, ".env.development", "VITE_C=mode\nVITE_D=mode\n")

	l := newLoader(t, dir, "development", "VITE_D=process", "PATH=/usr/bin")

	got, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"VITE_A": "env",
		"VITE_B": "local",
		"VITE_C": "mode",
		"VITE_D": "process",
	}, got)
}

func TestLoader_TestModeReadsLocalFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env.local", "VITE_LOCAL=1\n")
	writeFile(t, dir, ".env.test", "VITE_MODE=test\n")

	got, err := newLoader(t, dir, "test").Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"VITE_LOCAL": "1", "VITE_MODE": "test"}, got)
}

func TestLoader_NoFiles(t *testing.T) {
	l := newLoader(t, t.TempDir(), "production", "VITE_ONLY=1")

	got, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"VITE_ONLY": "1"}, got)
}

func TestLoader_UnreadableFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".env"), 0750))

	_, err := newLoader(t, dir, "development").Load()
	assert.Error(t, err)
}

func TestStore_Handler(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "VITE_APP_NAME=bolt\nDATABASE_URL=postgres://x\n")

	store, err := clientenv.NewStore(newLoader(t, dir, "development"), slog.Default())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	store.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/__devgate/env.json", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"VITE_APP_NAME": "bolt"}, body)
}

func TestStore_ReloadKeepsSnapshotOnError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "VITE_X=1\n")
	store, err := clientenv.NewStore(newLoader(t, dir, "development"), slog.Default())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, ".env")))
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".env"), 0750))

	assert.Error(t, store.Reload())
	assert.Equal(t, map[string]string{"VITE_X": "1"}, store.Snapshot())
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "VITE_VERSION=1\n")
	store, err := clientenv.NewStore(newLoader(t, dir, "development"), slog.Default())
	require.NoError(t, err)

	w, err := clientenv.NewWatcher(store, slog.Default())
	require.NoError(t, err)
	reloaded := w.ExportedNotify(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	writeFile(t, dir, ".env.local", "VITE_VERSION=2\n")

	select {
	case err := <-reloaded:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload")
	}
	require.Eventually(t, func() bool {
		return store.Snapshot()["VITE_VERSION"] == "2"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcher_MissingDir(t *testing.T) {
	store, err := clientenv.NewStore(newLoader(t, filepath.Join(t.TempDir(), "gone"), "development"), slog.Default())
	require.NoError(t, err)

	_, err = clientenv.NewWatcher(store, slog.Default())
	assert.Error(t, err)
}
