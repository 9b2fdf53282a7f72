package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/kestrad/modelgrab/internal/client"
	"github.com/kestrad/modelgrab/internal/utils"
)

// DownloadImages fetches many small whole files through a bounded worker
// pool. Each task fails in isolation; the returned count is the number of
// successes. Authentication failures inside workers are collected and
// surfaced once, as a single summary error, after every task has resolved.
func (e *Engine) DownloadImages(ctx context.Context, tasks []ImageTask, progress ProgressFunc) (int, error) {
	cfg := e.provider.Current()
	workers := cfg.BatchWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}
	jobID := uuid.NewString()[:8]
	log := utils.GetLogger("batch").With().Str("jobId", jobID).Logger()
	log.Debug().Int("tasks", len(tasks)).Int("workers", workers).Msg("Starting image batch")

	prog := newBatchProgress(progress, len(tasks), cfg.BatchThrottle)
	prog.start()

	taskCh := make(chan ImageTask, len(tasks))
	for _, task := range tasks {
		taskCh <- task
	}
	close(taskCh)

	var mu sync.Mutex
	successCount := 0
	failureCount := 0
	var authErrs []error

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			wlog := log.With().Int("workerID", workerID).Logger()
			for task := range taskCh {
				if ctx.Err() != nil {
					// Queued tasks are dropped once cancelled; they still
					// resolve so the final progress update reports them.
					mu.Lock()
					failureCount++
					mu.Unlock()
					prog.complete()
					continue
				}
				err := e.fetchImage(ctx, task)
				mu.Lock()
				switch {
				case err == nil:
					successCount++
				default:
					var authErr *client.AuthError
					if errors.As(err, &authErr) {
						authErrs = append(authErrs, err)
					} else {
						wlog.Error().Err(err).Str("url", task.URL).Msg("Image download failed")
					}
					failureCount++
				}
				mu.Unlock()
				prog.complete()
			}
		}(i + 1)
	}
	// Pool teardown only after every submitted task resolves.
	wg.Wait()
	prog.finish()

	log.Debug().Int("success", successCount).Int("failed", failureCount).Msg("Image batch finished")
	if len(authErrs) > 0 {
		return successCount, fmt.Errorf("%d image downloads require authentication: %w", len(authErrs), authErrs[0])
	}
	return successCount, nil
}

// fetchImage is one whole-file, non-resumable download.
func (e *Engine) fetchImage(ctx context.Context, task ImageTask) error {
	resp, err := e.registry.Session().GetStream(ctx, task.URL, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(task.Path), 0755); err != nil {
		return &client.FileError{Op: "mkdir", Path: task.Path, Err: err}
	}
	outFile, err := os.Create(task.Path)
	if err != nil {
		return &client.FileError{Op: "create", Path: task.Path, Err: err}
	}
	defer outFile.Close()

	if _, err := copyBody(ctx, outFile, resp.Body, nil); err != nil {
		cleanupPartial(task.Path)
		return err
	}
	return nil
}
