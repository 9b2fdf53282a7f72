package download

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/kestrad/modelgrab/internal/client"
	"github.com/kestrad/modelgrab/internal/config"
)

// testEngine builds an Engine over a static provider with fast retry/throttle
// settings suitable for tests.
func testEngine(mut func(*config.Config)) *Engine {
	cfg := config.Default()
	cfg.MaxRetries = 1
	cfg.RetryDelay = time.Millisecond
	cfg.Timeout = 10 * time.Second
	cfg.ResumeThrottle = 50 * time.Millisecond
	cfg.BatchThrottle = 20 * time.Millisecond
	if mut != nil {
		mut(&cfg)
	}
	provider := config.NewStatic(cfg)
	return New(client.NewRegistry(provider), provider)
}

// testData produces a deterministic byte pattern.
func testData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// rangeServer serves one blob with full Range support and records the Range
// header of every GET it sees.
type rangeServer struct {
	*httptest.Server
	mu     sync.Mutex
	ranges []string
}

func newRangeServer(data []byte) *rangeServer {
	rs := &rangeServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			rs.mu.Lock()
			rs.ranges = append(rs.ranges, r.Header.Get("Range"))
			rs.mu.Unlock()
		}
		http.ServeContent(w, r, "asset.bin", time.Time{}, bytes.NewReader(data))
	}))
	return rs
}

func (rs *rangeServer) rangeRequests() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var out []string
	for _, h := range rs.ranges {
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}
