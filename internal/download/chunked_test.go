package download

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrad/modelgrab/internal/config"
	"github.com/kestrad/modelgrab/internal/utils"
)

func TestPartitionRanges(t *testing.T) {
	tests := []struct {
		name  string
		total int64
		n     int
	}{
		{name: "even split", total: 10_000_000, n: 4},
		{name: "remainder to last", total: 10_000_001, n: 4},
		{name: "single chunk", total: 5_000, n: 1},
		{name: "more chunks than bytes", total: 3, n: 8},
		{name: "prime size", total: 999_983, n: 7},
		{name: "one byte", total: 1, n: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranges := partitionRanges(tt.total, tt.n)
			require.NotEmpty(t, ranges)

			var sum int64
			for i, rng := range ranges {
				require.LessOrEqual(t, rng.start, rng.end)
				if i > 0 {
					assert.Equal(t, ranges[i-1].end+1, rng.start, "ranges must be contiguous")
				}
				sum += rng.end - rng.start + 1
			}
			assert.Equal(t, int64(0), ranges[0].start)
			assert.Equal(t, tt.total-1, ranges[len(ranges)-1].end)
			assert.Equal(t, tt.total, sum, "range lengths must sum to the total size")
		})
	}

	t.Run("degenerate inputs", func(t *testing.T) {
		assert.Nil(t, partitionRanges(0, 4))
		assert.Nil(t, partitionRanges(100, 0))
	})
}

func TestDownloadLargeFile_ChunkedPath(t *testing.T) {
	data := testData(100_000)
	server := newRangeServer(data)
	defer server.Close()
	engine := testEngine(func(cfg *config.Config) {
		cfg.ChunkSize = 1_000
		cfg.MaxParallelChunks = 4
	})
	dest := filepath.Join(t.TempDir(), "large-model.bin")

	ok, err := engine.DownloadLargeFile(context.Background(), server.URL, dest, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got), "merged file must be byte-identical to the source")

	ranged := server.rangeRequests()
	assert.Len(t, ranged, 4, "one ranged GET per chunk")
	assert.Contains(t, ranged, "bytes=0-24999")
	assert.Contains(t, ranged, "bytes=75000-99999")

	_, statErr := os.Stat(filepath.Join(filepath.Dir(dest), utils.TempDirName))
	assert.True(t, os.IsNotExist(statErr), "part files are removed after the merge")
}

func TestDownloadLargeFile_FallbackWithoutRangeSupport(t *testing.T) {
	data := testData(100_000)
	var sawRange bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" {
			sawRange = true
		}
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "100000")
			return
		}
		_, _ = w.Write(data)
	}))
	defer server.Close()
	engine := testEngine(func(cfg *config.Config) {
		cfg.ChunkSize = 1_000
		cfg.MaxParallelChunks = 4
	})
	dest := filepath.Join(t.TempDir(), "sequential.bin")

	ok, err := engine.DownloadLargeFile(context.Background(), server.URL, dest, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.False(t, sawRange, "no ranged requests when the server lacks Accept-Ranges")
}

func TestDownloadLargeFile_SmallFileUsesSequential(t *testing.T) {
	data := testData(5_000)
	server := newRangeServer(data)
	defer server.Close()
	engine := testEngine(func(cfg *config.Config) {
		cfg.ChunkSize = 1_000 // threshold is 10x chunk size
		cfg.MaxParallelChunks = 4
	})
	dest := filepath.Join(t.TempDir(), "small.bin")

	ok, err := engine.DownloadLargeFile(context.Background(), server.URL, dest, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Empty(t, server.rangeRequests(), "files below the chunking threshold go sequential")
}

func TestDownloadLargeFile_SingleChunkConfigUsesSequential(t *testing.T) {
	data := testData(100_000)
	server := newRangeServer(data)
	defer server.Close()
	engine := testEngine(func(cfg *config.Config) {
		cfg.ChunkSize = 1_000
		cfg.MaxParallelChunks = 1
	})
	dest := filepath.Join(t.TempDir(), "single.bin")

	ok, err := engine.DownloadLargeFile(context.Background(), server.URL, dest, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDownloadLargeFile_FailedChunkLeavesParts(t *testing.T) {
	data := testData(100_000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Range"), "bytes=75000-") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		http.ServeContent(w, r, "asset.bin", time.Time{}, bytes.NewReader(data))
	}))
	defer server.Close()
	engine := testEngine(func(cfg *config.Config) {
		cfg.ChunkSize = 1_000
		cfg.MaxParallelChunks = 4
	})
	dir := t.TempDir()
	dest := filepath.Join(dir, "broken.bin")

	ok, err := engine.DownloadLargeFile(context.Background(), server.URL, dest, nil)
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunks failed")

	parts, globErr := filepath.Glob(filepath.Join(dir, utils.TempDirName, "*.part*"))
	require.NoError(t, globErr)
	assert.Len(t, parts, 3, "completed sibling chunks keep their part files")
}

func TestDownloadLargeFile_ResumesCompletedChunks(t *testing.T) {
	data := testData(100_000)
	server := newRangeServer(data)
	defer server.Close()
	engine := testEngine(func(cfg *config.Config) {
		cfg.ChunkSize = 1_000
		cfg.MaxParallelChunks = 4
	})
	dir := t.TempDir()
	dest := filepath.Join(dir, "resume-chunks.bin")

	// A previous run already finished the first chunk.
	tempDir := filepath.Join(dir, utils.TempDirName)
	require.NoError(t, os.MkdirAll(tempDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "resume-chunks.bin.part0"), data[:25_000], 0644))

	ok, err := engine.DownloadLargeFile(context.Background(), server.URL, dest, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
	assert.NotContains(t, server.rangeRequests(), "bytes=0-24999", "a finished chunk is not refetched")
}

func TestDownloadLargeFile_ProgressReportsAggregate(t *testing.T) {
	data := testData(100_000)
	server := newRangeServer(data)
	defer server.Close()
	engine := testEngine(func(cfg *config.Config) {
		cfg.ChunkSize = 1_000
		cfg.MaxParallelChunks = 4
	})
	dest := filepath.Join(t.TempDir(), "aggregate.bin")

	var calls []int64
	progress := func(downloaded, total int64, speed string) {
		calls = append(calls, downloaded)
		assert.Equal(t, int64(len(data)), total)
	}
	ok, err := engine.DownloadLargeFile(context.Background(), server.URL, dest, progress)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotEmpty(t, calls)
	assert.Equal(t, int64(len(data)), calls[len(calls)-1], "final update reports the full size")
}
