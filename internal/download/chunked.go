package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/kestrad/modelgrab/internal/client"
	"github.com/kestrad/modelgrab/internal/utils"
)

type chunkRange struct {
	start int64
	end   int64 // inclusive
}

type chunkState struct {
	rng       chunkRange
	partPath  string
	completed bool
	err       error
}

// partitionRanges splits [0,total) into n contiguous, non-overlapping
// ranges; the last range absorbs any remainder.
func partitionRanges(total int64, n int) []chunkRange {
	if total <= 0 || n < 1 {
		return nil
	}
	if int64(n) > total {
		n = int(total)
	}
	chunkLen := total / int64(n)
	ranges := make([]chunkRange, 0, n)
	var pos int64
	for i := 0; i < n; i++ {
		end := pos + chunkLen - 1
		if i == n-1 {
			end = total - 1
		}
		ranges = append(ranges, chunkRange{start: pos, end: end})
		pos = end + 1
	}
	return ranges
}

// DownloadLargeFile fetches url into path using parallel ranged GETs. It
// falls back to the sequential resumable path when the server gives no
// usable HEAD answer, does not accept ranges, the file is too small to be
// worth splitting, or parallelism is configured away.
func (e *Engine) DownloadLargeFile(ctx context.Context, url, path string, progress ProgressFunc) (bool, error) {
	log := utils.GetLogger("chunked")
	cfg := e.provider.Current()

	totalSize, _, acceptRanges, err := e.RemoteFileInfo(ctx, url)
	if err != nil || !acceptRanges || totalSize < 10*cfg.ChunkSize || cfg.MaxParallelChunks <= 1 {
		if err != nil {
			log.Debug().Err(err).Str("url", url).Msg("HEAD probe failed, using sequential download")
		} else {
			log.Debug().Str("url", url).Int64("size", totalSize).Bool("ranges", acceptRanges).Msg("Chunked path not applicable, using sequential download")
		}
		return e.DownloadFileWithResume(ctx, url, path, progress, nil)
	}

	ranges := partitionRanges(totalSize, cfg.MaxParallelChunks)
	tempDir := filepath.Join(filepath.Dir(path), utils.TempDirName)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return false, &client.FileError{Op: "mkdir", Path: tempDir, Err: err}
	}

	chunks := make([]chunkState, len(ranges))
	for i, rng := range ranges {
		chunks[i] = chunkState{
			rng:      rng,
			partPath: filepath.Join(tempDir, fmt.Sprintf("%s.part%d", filepath.Base(path), i)),
		}
	}
	log.Debug().Str("url", url).Int64("size", totalSize).Int("chunks", len(chunks)).Msg("Starting chunked download")

	rep := newReporter(progress, totalSize, cfg.ResumeThrottle)
	retry := client.DefaultRetryPolicy(cfg.MaxRetries, cfg.RetryDelay)

	var wg sync.WaitGroup
	for i := range chunks {
		wg.Add(1)
		go func(chunk *chunkState, id int) {
			defer wg.Done()
			clog := log.With().Int("chunkId", id).Logger()
			err := retry.Do(ctx, func() error {
				return e.downloadChunk(ctx, url, chunk, rep)
			})
			if err != nil {
				// Only this chunk fails; siblings keep their work.
				clog.Error().Err(err).Msg("Chunk download failed")
				chunk.err = err
				return
			}
			chunk.completed = true
		}(&chunks[i], i)
	}
	wg.Wait()

	var failed []int
	for i := range chunks {
		if !chunks[i].completed {
			failed = append(failed, i)
		}
	}
	if len(failed) > 0 {
		// Part files stay behind for inspection and a later retry.
		return false, fmt.Errorf("download incomplete: %d chunks failed: %v", len(failed), failed)
	}

	if err := mergeParts(chunks, path, totalSize); err != nil {
		return false, err
	}
	os.Remove(tempDir)
	rep.finish()
	log.Debug().Str("path", path).Int64("bytes", totalSize).Msg("Chunked download completed")
	return true, nil
}

// downloadChunk streams one byte range into its part file, resuming a
// partially written part where possible.
func (e *Engine) downloadChunk(ctx context.Context, url string, chunk *chunkState, rep *reporter) error {
	log := utils.GetLogger("chunk")
	expected := chunk.rng.end - chunk.rng.start + 1

	var resumeOffset int64
	if info, err := os.Stat(chunk.partPath); err == nil {
		size := info.Size()
		switch {
		case size == expected:
			log.Debug().Str("part", filepath.Base(chunk.partPath)).Msg("Chunk already downloaded, skipping")
			rep.add(size)
			return nil
		case size > 0 && size < expected:
			resumeOffset = size
		case size > expected:
			log.Warn().Str("part", filepath.Base(chunk.partPath)).Int64("size", size).Int64("expected", expected).Msg("Part file larger than expected, redownloading")
			os.Remove(chunk.partPath)
		}
	}

	rangeHeader := fmt.Sprintf("bytes=%d-%d", chunk.rng.start+resumeOffset, chunk.rng.end)
	resp, err := e.registry.Session().GetStream(ctx, url, map[string]string{"Range": rangeHeader})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("unexpected status code for range request: %d", resp.StatusCode)
	}

	flag := os.O_WRONLY | os.O_CREATE
	if resumeOffset > 0 {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	partFile, err := os.OpenFile(chunk.partPath, flag, 0644)
	if err != nil {
		return &client.FileError{Op: "open", Path: chunk.partPath, Err: err}
	}
	defer partFile.Close()

	if resumeOffset > 0 {
		rep.add(resumeOffset)
	}
	written, err := copyBody(ctx, partFile, resp.Body, rep)
	if err != nil {
		// Roll the progress counter back so a retry doesn't double-count.
		rep.add(-(resumeOffset + written))
		return err
	}
	if resumeOffset+written != expected {
		rep.add(-(resumeOffset + written))
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expected, resumeOffset+written)
	}
	return nil
}

// mergeParts concatenates part files in ascending range order into the
// destination, one part open at a time, then removes them.
func mergeParts(chunks []chunkState, path string, totalSize int64) error {
	destFile, err := os.Create(path)
	if err != nil {
		return &client.FileError{Op: "create", Path: path, Err: err}
	}
	defer destFile.Close()

	var totalWritten int64
	for i := range chunks {
		partFile, err := os.Open(chunks[i].partPath)
		if err != nil {
			return &client.FileError{Op: "open", Path: chunks[i].partPath, Err: err}
		}
		written, err := io.Copy(destFile, partFile)
		partFile.Close()
		if err != nil {
			return &client.FileError{Op: "merge", Path: chunks[i].partPath, Err: err}
		}
		if expected := chunks[i].rng.end - chunks[i].rng.start + 1; written != expected {
			return &client.FileError{Op: "merge", Path: chunks[i].partPath, Err: fmt.Errorf("wrote %d bytes but chunk size is %d", written, expected)}
		}
		totalWritten += written
	}
	if totalWritten != totalSize {
		return &client.FileError{Op: "merge", Path: path, Err: fmt.Errorf("total written bytes (%d) doesn't match expected file size (%d)", totalWritten, totalSize)}
	}
	for i := range chunks {
		os.Remove(chunks[i].partPath)
	}
	return nil
}
