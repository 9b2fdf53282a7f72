package client

import (
	"net/http"
	u "net/url"
	"sync"
	"time"

	"github.com/kestrad/modelgrab/internal/utils"
)

// SessionConfig carries everything needed to build the shared HTTP session.
type SessionConfig struct {
	APIKey    string
	Timeout   time.Duration
	KATimeout time.Duration
	PoolSize  int
	UserAgent string
	ProxyURL  string
	Headers   map[string]string
}

// Session is the process-wide HTTP session: one pooled transport, a set of
// default headers and the bearer-token Authorization header. It is shared
// read-mostly; the only mutation path is the Registry's reconfiguration,
// which goes through the Set* methods below.
type Session struct {
	client *http.Client
	stream *http.Client // same transport, redirects handled manually

	mu        sync.RWMutex
	headers   map[string]string
	userAgent string
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 90 * time.Second
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 100
	}
	transport := &http.Transport{
		IdleConnTimeout:     cfg.KATimeout,
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		DisableCompression:  true,
		MaxConnsPerHost:     0,
	}
	if cfg.ProxyURL != "" {
		if proxyURL, err := u.Parse(cfg.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	headers := make(map[string]string)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	s := &Session{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		stream: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		headers:   headers,
		userAgent: cfg.UserAgent,
	}
	if cfg.APIKey != "" {
		s.SetAPIKey(cfg.APIKey)
	}
	return s
}

// SetAPIKey re-derives the Authorization header from a new key. An empty
// key removes the header.
func (s *Session) SetAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == "" {
		delete(s.headers, "Authorization")
		return
	}
	s.headers["Authorization"] = "Bearer " + key
}

func (s *Session) SetHeader(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers[key] = value
}

func (s *Session) SetTimeout(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client.Timeout = timeout
	s.stream.Timeout = timeout
}

func (s *Session) Timeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client.Timeout
}

// AuthHeader returns the current Authorization header value.
func (s *Session) AuthHeader() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.headers["Authorization"]
}

func (s *Session) applyHeaders(req *http.Request, extra map[string]string) {
	s.mu.RLock()
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	} else {
		req.Header.Set("User-Agent", utils.ToolUserAgent)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	s.mu.RUnlock()
	for k, v := range extra {
		req.Header.Set(k, v)
	}
}

// Do sends a request with the session's default headers applied, following
// redirects normally.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	s.applyHeaders(req, nil)
	return s.client.Do(req)
}
