package download

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"

	"github.com/kestrad/modelgrab/internal/client"
	"github.com/kestrad/modelgrab/internal/utils"
)

// sizeTolerance is the accepted relative deviation between the reported
// total and the bytes on disk. Some servers misreport Content-Length, so a
// mismatch inside the tolerance still counts as success.
const sizeTolerance = 0.10

// DownloadFile fetches url into path as one non-resumable stream,
// truncating any existing file.
func (e *Engine) DownloadFile(ctx context.Context, url, path string, progress ProgressFunc) (bool, error) {
	return e.download(ctx, url, path, progress, nil, false)
}

// DownloadFileWithResume continues an interrupted download from the current
// size of the file at path, appending the remainder. Returns (false, nil)
// on a soft size-validation failure; the partial file is kept for a future
// resume unless it is exactly zero bytes.
func (e *Engine) DownloadFileWithResume(ctx context.Context, url, path string, progress ProgressFunc, headers map[string]string) (bool, error) {
	return e.download(ctx, url, path, progress, headers, true)
}

func (e *Engine) download(ctx context.Context, url, path string, progress ProgressFunc, headers map[string]string, resume bool) (bool, error) {
	log := utils.GetLogger("resumable")
	cfg := e.provider.Current()

	var resumePos int64
	if resume {
		if info, err := os.Stat(path); err == nil {
			resumePos = info.Size()
		}
	}
	hdrs := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		hdrs[k] = v
	}
	if resumePos > 0 {
		hdrs["Range"] = fmt.Sprintf("bytes=%d-", resumePos)
		log.Debug().Str("path", path).Int64("resumePos", resumePos).Msg("Resuming download")
	}

	resp, err := e.registry.Session().GetStream(ctx, url, hdrs)
	if err != nil {
		var authErr *client.AuthError
		if errors.As(err, &authErr) {
			// Never downgraded; the caller must surface it.
			return false, err
		}
		var netErr *client.NetworkError
		if errors.As(err, &netErr) {
			return false, err
		}
		cleanupPartial(path)
		return false, err
	}
	defer resp.Body.Close()

	if resumePos > 0 && resp.StatusCode == http.StatusOK {
		// Server ignored the Range header and resent the whole file.
		log.Debug().Str("path", path).Msg("Server ignored range, restarting from zero")
		resumePos = 0
	}

	totalSize := int64(0)
	if resp.ContentLength > 0 {
		totalSize = resp.ContentLength + resumePos
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, &client.FileError{Op: "mkdir", Path: path, Err: err}
	}
	flag := os.O_WRONLY | os.O_CREATE
	if resumePos > 0 {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	outFile, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return false, &client.FileError{Op: "open", Path: path, Err: err}
	}
	defer outFile.Close()

	rep := newReporter(progress, totalSize, cfg.ResumeThrottle)
	rep.seed(resumePos)
	_, err = copyBody(ctx, outFile, resp.Body, rep)
	if err != nil {
		var netErr *client.NetworkError
		if errors.As(err, &netErr) {
			// Reported by return value; the partial stays for a resume.
			log.Debug().Err(err).Str("path", path).Msg("Transfer interrupted")
			return false, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		cleanupPartial(path)
		return false, err
	}
	rep.finish()

	if totalSize > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return false, &client.FileError{Op: "stat", Path: path, Err: err}
		}
		if !sizeWithinTolerance(info.Size(), totalSize) {
			log.Warn().Str("path", path).Int64("actual", info.Size()).Int64("expected", totalSize).Msg("Downloaded size outside tolerance")
			return false, nil
		}
	}
	log.Debug().Str("path", path).Int64("bytes", rep.count()).Msg("Download completed")
	return true, nil
}

// sizeWithinTolerance accepts a final size within 10% of the reported
// total. An unknown total always passes.
func sizeWithinTolerance(actual, expected int64) bool {
	if expected <= 0 {
		return true
	}
	deviation := math.Abs(float64(actual-expected)) / float64(expected)
	return deviation <= sizeTolerance
}

// cleanupPartial deletes the file at path only when it is zero bytes;
// nonzero partials are kept so a future run can resume them.
func cleanupPartial(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Size() == 0 {
		os.Remove(path)
	}
}
