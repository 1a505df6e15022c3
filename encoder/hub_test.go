package encoder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/tdz/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistry serves files from a map keyed by "<repo>/<file>".
type fakeRegistry struct {
	mu       sync.Mutex
	files    map[string][]byte
	gets     map[string]int
	failures int
}

func (f *fakeRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// /<org>/<name>/resolve/<rev>/<file>
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) != 5 || parts[2] != "resolve" {
		http.NotFound(w, r)
		return
	}
	key := parts[0] + "/" + parts[1] + "/" + parts[4]

	f.mu.Lock()
	if r.Method == http.MethodGet {
		f.gets[key]++
	}
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	data, ok := f.files[key]
	f.mu.Unlock()

	if fail {
		http.Error(w, "try again", http.StatusServiceUnavailable)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(data)
}

func (f *fakeRegistry) getCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets[key]
}

func newFakeRegistry(t *testing.T, repo, modelDir string) (*fakeRegistry, *httptest.Server) {
	t.Helper()
	reg := &fakeRegistry{files: map[string][]byte{}, gets: map[string]int{}}
	if modelDir != "" {
		entries, err := os.ReadDir(modelDir)
		require.NoError(t, err)
		for _, e := range entries {
			data, err := os.ReadFile(filepath.Join(modelDir, e.Name()))
			require.NoError(t, err)
			reg.files[repo+"/"+e.Name()] = data
		}
	}
	srv := httptest.NewServer(reg)
	t.Cleanup(srv.Close)
	return reg, srv
}

func TestHub_FetchModelDownloadsOnce(t *testing.T) {
	const repo = "acme/tiny-bert"
	reg, srv := newFakeRegistry(t, repo, writeTestModel(t, true))
	cache := t.TempDir()
	hub := NewHub(cache, WithEndpoint(srv.URL), WithRetry(2, time.Millisecond))

	files, err := hub.FetchModel(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cache, "acme--tiny-bert", "config.json"), files.Config)
	assert.NotEmpty(t, files.Tokenizer)
	assert.Empty(t, files.Vocab)
	assert.FileExists(t, files.Weights)

	_, err = hub.FetchModel(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.getCount(repo+"/"+safetensorsFile))

	leftovers, err := filepath.Glob(filepath.Join(hub.LocalDir(repo), "*.part"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestHub_VocabFallback(t *testing.T) {
	const repo = "acme/vocab-only"
	_, srv := newFakeRegistry(t, repo, writeTestModel(t, false))
	hub := NewHub(t.TempDir(), WithEndpoint(srv.URL), WithRetry(1, time.Millisecond))

	files, err := hub.FetchModel(context.Background(), repo)
	require.NoError(t, err)
	assert.Empty(t, files.Tokenizer)
	assert.FileExists(t, files.Vocab)
}

func TestHub_RetriesTransientFailures(t *testing.T) {
	const repo = "acme/flaky"
	reg, srv := newFakeRegistry(t, repo, "")
	reg.files[repo+"/config.json"] = []byte(`{}`)
	reg.failures = 2
	hub := NewHub(t.TempDir(), WithEndpoint(srv.URL), WithRetry(3, time.Millisecond))

	path, err := hub.Fetch(context.Background(), repo, "config.json")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestHub_MissingFile(t *testing.T) {
	reg, srv := newFakeRegistry(t, "acme/empty", "")
	hub := NewHub(t.TempDir(), WithEndpoint(srv.URL), WithRetry(3, time.Millisecond))

	_, err := hub.Fetch(context.Background(), "acme/empty", "config.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.ErrorIs(t, err, core.ErrEncoderInit)
	// 404 is not retried
	assert.Equal(t, 1, reg.getCount("acme/empty/config.json"))
}

func TestHub_LegacyWeightsRejected(t *testing.T) {
	const repo = "acme/legacy"
	dir := writeTestModel(t, true)
	require.NoError(t, os.Rename(filepath.Join(dir, safetensorsFile), filepath.Join(dir, pytorchFile)))
	_, srv := newFakeRegistry(t, repo, dir)
	hub := NewHub(t.TempDir(), WithEndpoint(srv.URL), WithRetry(1, time.Millisecond))

	_, err := hub.FetchModel(context.Background(), repo)
	assert.ErrorIs(t, err, ErrLegacyWeights)

	_, err = hub.FetchModel(context.Background(), dir)
	assert.ErrorIs(t, err, ErrLegacyWeights)
}

func TestHub_LocalDirectory(t *testing.T) {
	dir := writeTestModel(t, false)
	hub := NewHub(t.TempDir(), WithEndpoint("http://127.0.0.1:1"))

	files, err := hub.FetchModel(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, vocabFile), files.Vocab)

	_, err = hub.FetchModel(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestHub_EnvEndpoint(t *testing.T) {
	t.Setenv("HF_ENDPOINT", "http://mirror.local/")
	hub := NewHub(t.TempDir())
	assert.Equal(t, "http://mirror.local", hub.endpoint)
}
