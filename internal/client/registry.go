package client

import (
	"sync"

	"github.com/kestrad/modelgrab/internal/config"
	"github.com/kestrad/modelgrab/internal/utils"
)

// Registry owns the live Session/Executor pair for the process. It is
// constructed once at startup and passed by reference; there is no hidden
// global. Construction is lazy with a check-lock-check so concurrent first
// callers build exactly one session, and every access compares the live
// fields against the provider's current configuration, patching drift in
// place so references already held by in-flight callers stay valid.
type Registry struct {
	provider config.Provider

	mu       sync.Mutex
	session  *Session
	executor *Executor
	applied  config.Config
}

func NewRegistry(provider config.Provider) *Registry {
	return &Registry{provider: provider}
}

// Session returns the shared session, building it on first use and
// reconciling configuration drift on every call.
func (r *Registry) Session() *Session {
	s, _ := r.acquire()
	return s
}

// Executor returns the shared JSON executor over the same session.
func (r *Registry) Executor() *Executor {
	_, e := r.acquire()
	return e
}

func (r *Registry) acquire() (*Session, *Executor) {
	if r.built() {
		r.reconcile()
	} else {
		r.mu.Lock()
		if r.session == nil {
			r.construct()
		}
		r.mu.Unlock()
		r.reconcile()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session, r.executor
}

func (r *Registry) built() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// construct is called with r.mu held.
func (r *Registry) construct() {
	log := utils.GetLogger("registry")
	cfg := r.provider.Current()
	r.session = NewSession(SessionConfig{
		APIKey:    cfg.APIKey,
		Timeout:   cfg.Timeout,
		KATimeout: cfg.KATimeout,
		PoolSize:  cfg.PoolSize,
		UserAgent: cfg.UserAgent,
		ProxyURL:  cfg.ProxyURL,
	})
	r.executor = NewExecutor(r.session, DefaultRetryPolicy(cfg.MaxRetries, cfg.RetryDelay))
	r.applied = cfg
	log.Debug().Dur("timeout", cfg.Timeout).Int("poolSize", cfg.PoolSize).Msg("HTTP session constructed")
}

// reconcile patches any drifted field into the existing session and
// executor without replacing them.
func (r *Registry) reconcile() {
	log := utils.GetLogger("registry")
	cfg := r.provider.Current()
	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg.APIKey != r.applied.APIKey {
		r.session.SetAPIKey(cfg.APIKey)
		r.applied.APIKey = cfg.APIKey
		log.Debug().Msg("API key changed, Authorization header re-derived")
	}
	if cfg.Timeout != r.applied.Timeout {
		r.session.SetTimeout(cfg.Timeout)
		r.applied.Timeout = cfg.Timeout
		log.Debug().Dur("timeout", cfg.Timeout).Msg("Session timeout updated")
	}
	if cfg.MaxRetries != r.applied.MaxRetries || cfg.RetryDelay != r.applied.RetryDelay {
		r.executor.SetRetryPolicy(DefaultRetryPolicy(cfg.MaxRetries, cfg.RetryDelay))
		r.applied.MaxRetries = cfg.MaxRetries
		r.applied.RetryDelay = cfg.RetryDelay
		log.Debug().Int("maxRetries", cfg.MaxRetries).Dur("retryDelay", cfg.RetryDelay).Msg("Retry policy updated")
	}
}
