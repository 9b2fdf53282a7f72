package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	u "net/url"
	"sync"

	"github.com/kestrad/modelgrab/internal/utils"
)

// Executor provides the JSON request helpers over a Session. GET failures
// are reported straight back to the caller; POSTs go through the shared
// retry policy because they usually carry user actions worth another try.
type Executor struct {
	session *Session

	mu    sync.RWMutex
	retry RetryPolicy
}

func NewExecutor(session *Session, retry RetryPolicy) *Executor {
	return &Executor{session: session, retry: retry}
}

// SetRetryPolicy swaps the retry parameters in place; used by the Registry
// when configuration drifts.
func (e *Executor) SetRetryPolicy(retry RetryPolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retry = retry
}

func (e *Executor) retryPolicy() RetryPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.retry
}

// GetJSON performs a GET with optional query params and decodes the JSON
// response body.
func (e *Executor) GetJSON(ctx context.Context, rawURL string, params map[string]string) (map[string]any, error) {
	log := utils.GetLogger("executor")
	target := rawURL
	if len(params) > 0 {
		parsed, err := u.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("error parsing URL %s: %v", rawURL, err)
		}
		query := parsed.Query()
		for k, v := range params {
			query.Set(k, v)
		}
		parsed.RawQuery = query.Encode()
		target = parsed.String()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.session.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "get", Err: err}
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode); err != nil {
		log.Debug().Int("status", resp.StatusCode).Str("url", target).Msg("GET returned error status")
		return nil, err
	}
	return decodeJSON(resp.Body)
}

// PostJSON performs a POST with a JSON body, retrying connection/timeout
// failures per the configured policy. HTTP error statuses are not retried.
func (e *Executor) PostJSON(ctx context.Context, rawURL string, body any) (map[string]any, error) {
	log := utils.GetLogger("executor")
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error encoding request body: %v", err)
		}
	}

	var result map[string]any
	err := e.retryPolicy().Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := e.session.Do(req)
		if err != nil {
			log.Debug().Err(err).Str("url", rawURL).Msg("POST attempt failed")
			return &NetworkError{Op: "post", Err: err}
		}
		defer resp.Body.Close()
		if err := classifyStatus(resp.StatusCode); err != nil {
			return err
		}
		result, err = decodeJSON(resp.Body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func decodeJSON(r io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &NetworkError{Op: "read", Err: err}
	}
	if len(data) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("error decoding response: %v", err)
	}
	return out, nil
}
