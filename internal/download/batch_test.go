package download

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrad/modelgrab/internal/client"
)

// progressLog records batch progress callbacks; the callback itself runs on
// worker goroutines, so recording takes its own lock.
type progressLog struct {
	mu    sync.Mutex
	calls [][2]int64
}

func (p *progressLog) fn(done, total int64, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, [2]int64{done, total})
}

func (p *progressLog) last() [2]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return [2]int64{-1, -1}
	}
	return p.calls[len(p.calls)-1]
}

func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, "image data for %s", r.URL.Path)
	})
	mux.HandleFunc("/missing/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/gated/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	return httptest.NewServer(mux)
}

func TestDownloadImages_IsolatedFailures(t *testing.T) {
	server := newImageServer(t)
	defer server.Close()
	engine := testEngine(nil)
	dir := t.TempDir()

	tasks := []ImageTask{
		{URL: server.URL + "/ok/1.png", Path: filepath.Join(dir, "1.png")},
		{URL: server.URL + "/missing/2.png", Path: filepath.Join(dir, "2.png")},
		{URL: server.URL + "/ok/3.png", Path: filepath.Join(dir, "3.png")},
		{URL: server.URL + "/missing/4.png", Path: filepath.Join(dir, "4.png")},
		{URL: server.URL + "/ok/5.png", Path: filepath.Join(dir, "5.png")},
	}
	successCount, err := engine.DownloadImages(context.Background(), tasks, nil)
	require.NoError(t, err, "per-item failures never propagate")
	assert.Equal(t, 3, successCount)

	for _, name := range []string{"1.png", "3.png", "5.png"} {
		_, statErr := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, statErr)
	}
}

func TestDownloadImages_FinalProgressAlwaysFires(t *testing.T) {
	server := newImageServer(t)
	defer server.Close()
	engine := testEngine(nil)
	dir := t.TempDir()

	var tasks []ImageTask
	for i := 0; i < 20; i++ {
		tasks = append(tasks, ImageTask{
			URL:  fmt.Sprintf("%s/ok/%d.png", server.URL, i),
			Path: filepath.Join(dir, fmt.Sprintf("%d.png", i)),
		})
	}
	progress := &progressLog{}
	successCount, err := engine.DownloadImages(context.Background(), tasks, progress.fn)
	require.NoError(t, err)
	assert.Equal(t, 20, successCount)
	assert.Equal(t, [2]int64{20, 20}, progress.last(),
		"the final update reports done == N even when completions beat the throttle window")

	// The completed count is monotonically non-decreasing.
	progress.mu.Lock()
	defer progress.mu.Unlock()
	var prev int64
	for _, call := range progress.calls {
		assert.GreaterOrEqual(t, call[0], prev)
		prev = call[0]
	}
}

func TestDownloadImages_AuthFailuresSummarizedOnce(t *testing.T) {
	server := newImageServer(t)
	defer server.Close()
	engine := testEngine(nil)
	dir := t.TempDir()

	tasks := []ImageTask{
		{URL: server.URL + "/ok/1.png", Path: filepath.Join(dir, "1.png")},
		{URL: server.URL + "/gated/2.png", Path: filepath.Join(dir, "2.png")},
		{URL: server.URL + "/ok/3.png", Path: filepath.Join(dir, "3.png")},
		{URL: server.URL + "/gated/4.png", Path: filepath.Join(dir, "4.png")},
		{URL: server.URL + "/ok/5.png", Path: filepath.Join(dir, "5.png")},
	}
	successCount, err := engine.DownloadImages(context.Background(), tasks, nil)
	assert.Equal(t, 3, successCount)
	require.Error(t, err)
	var authErr *client.AuthError
	assert.ErrorAs(t, err, &authErr)
	assert.Contains(t, err.Error(), "2 image downloads require authentication")
}

func TestDownloadImages_CancelledContextDropsQueued(t *testing.T) {
	server := newImageServer(t)
	defer server.Close()
	engine := testEngine(nil)
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var tasks []ImageTask
	for i := 0; i < 5; i++ {
		tasks = append(tasks, ImageTask{
			URL:  fmt.Sprintf("%s/ok/%d.png", server.URL, i),
			Path: filepath.Join(dir, fmt.Sprintf("%d.png", i)),
		})
	}
	progress := &progressLog{}
	successCount, err := engine.DownloadImages(ctx, tasks, progress.fn)
	require.NoError(t, err)
	assert.Equal(t, 0, successCount)
	assert.Equal(t, [2]int64{5, 5}, progress.last(), "dropped tasks still resolve")
}

func TestDownloadImages_Empty(t *testing.T) {
	engine := testEngine(nil)
	progress := &progressLog{}
	successCount, err := engine.DownloadImages(context.Background(), nil, progress.fn)
	require.NoError(t, err)
	assert.Equal(t, 0, successCount)
	assert.Equal(t, [2]int64{0, 0}, progress.last(), "even an empty batch emits a final update")
}
