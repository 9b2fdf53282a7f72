package client

import (
	"context"
	"net/http"

	"github.com/kestrad/modelgrab/internal/utils"
)

// GetStream opens a streaming GET against url and returns the response with
// its body unread. Redirect policy: a 307 whose Location contains a login
// path, or a 416, means the API is bouncing us to authentication; ordinary
// 3xx responses are followed exactly once by re-fetching the new Location.
func (s *Session) GetStream(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	return s.getStream(ctx, url, headers, false)
}

func (s *Session) getStream(ctx context.Context, url string, headers map[string]string, redirected bool) (*http.Response, error) {
	log := utils.GetLogger("stream")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	s.applyHeaders(req, headers)
	resp, err := s.stream.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "get", Err: err}
	}

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		location := resp.Header.Get("Location")
		resp.Body.Close()
		if resp.StatusCode == http.StatusTemporaryRedirect && isLoginRedirect(location) {
			log.Debug().Str("url", url).Str("location", location).Msg("Redirected to login, treating as auth failure")
			return nil, &AuthError{Status: resp.StatusCode, RequiresAPIKey: true, Message: statusMessage(resp.StatusCode)}
		}
		if location == "" || redirected {
			return nil, &APIError{Status: resp.StatusCode, Message: statusMessage(resp.StatusCode)}
		}
		next, perr := resp.Request.URL.Parse(location)
		if perr != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "invalid redirect location"}
		}
		log.Debug().Str("from", url).Str("to", next.String()).Msg("Following redirect")
		return s.getStream(ctx, next.String(), headers, true)
	}

	if err := classifyStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// Head probes url for size and range support without fetching the body.
func (s *Session) Head(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	s.applyHeaders(req, nil)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "head", Err: err}
	}
	resp.Body.Close()
	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	return resp, nil
}
