package download

import (
	"context"
	"io"
	"os"
	"strconv"

	"github.com/kestrad/modelgrab/internal/client"
	"github.com/kestrad/modelgrab/internal/config"
	"github.com/kestrad/modelgrab/internal/utils"
)

const bufferSize = 1024 * 1024 * 2 // 2MB buffer

// Engine composes the shared HTTP session into the three download paths:
// resumable single-stream, chunked parallel, and bounded-concurrency batch.
type Engine struct {
	registry *client.Registry
	provider config.Provider
}

func New(registry *client.Registry, provider config.Provider) *Engine {
	return &Engine{registry: registry, provider: provider}
}

// ImageTask is one small whole-file download within a batch job.
type ImageTask struct {
	URL  string `yaml:"link"`
	Path string `yaml:"op"`
}

// RemoteFileInfo probes url with a HEAD request and returns the reported
// size, a filename inferred from Content-Disposition (may be empty) and
// whether the server accepts byte ranges.
func (e *Engine) RemoteFileInfo(ctx context.Context, url string) (int64, string, bool, error) {
	resp, err := e.registry.Session().Head(ctx, url)
	if err != nil {
		return 0, "", false, err
	}
	filename := utils.FilenameFromDisposition(resp.Header.Get("Content-Disposition"))
	acceptRanges := resp.Header.Get("Accept-Ranges") == "bytes"
	var size int64
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		size, _ = strconv.ParseInt(cl, 10, 64)
	}
	return size, filename, acceptRanges, nil
}

// copyBody streams src into dst, polling ctx at every iteration and feeding
// the reporter as bytes land on disk.
func copyBody(ctx context.Context, dst *os.File, src io.Reader, rep *reporter) (int64, error) {
	buffer := make([]byte, bufferSize)
	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}
		bytesRead, err := src.Read(buffer)
		if bytesRead > 0 {
			if _, writeErr := dst.Write(buffer[:bytesRead]); writeErr != nil {
				return written, &client.FileError{Op: "write", Path: dst.Name(), Err: writeErr}
			}
			written += int64(bytesRead)
			if rep != nil {
				rep.add(int64(bytesRead))
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return written, &client.NetworkError{Op: "read", Err: err}
		}
	}
	return written, nil
}
