package http

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/modelrelay/relay/internal/application/dispatch"
)

// metrics holds the process counters surfaced by GET /metrics in
// Prometheus text exposition format. Deliberately dependency-free: the
// surface is three counters, not a full metrics pipeline.
type metrics struct {
	mu       sync.Mutex
	requests map[string]*uint64 // "route|status" -> count

	activeStreams int64
}

func newMetrics() *metrics {
	return &metrics{requests: make(map[string]*uint64)}
}

func (m *metrics) observe(route string, status int) {
	key := route + "|" + fmt.Sprintf("%d", status)
	m.mu.Lock()
	c, ok := m.requests[key]
	if !ok {
		c = new(uint64)
		m.requests[key] = c
	}
	m.mu.Unlock()
	atomic.AddUint64(c, 1)
}

func (m *metrics) streamStarted() { atomic.AddInt64(&m.activeStreams, 1) }
func (m *metrics) streamEnded()   { atomic.AddInt64(&m.activeStreams, -1) }

// middleware counts every completed request by route template and status.
// Proxy requests (which may hold a stream open for minutes) are also
// tracked as an in-flight gauge for the duration of their body write.
func (m *metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		proxied := strings.HasPrefix(c.Request.URL.Path, "/v1/") || strings.HasPrefix(c.Request.URL.Path, "/backend-api/") || c.Request.URL.Path == "/messages"
		if proxied {
			m.streamStarted()
			defer m.streamEnded()
		}
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		m.observe(route, c.Writer.Status())
	}
}

// handler renders the counters as Prometheus text exposition, plus the
// number of (provider,model) keys currently gated by the engine's cooldown
// manager.
func (m *metrics) handler(engine *dispatch.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var b strings.Builder
		b.WriteString("# TYPE relay_http_requests_total counter\n")

		m.mu.Lock()
		keys := make([]string, 0, len(m.requests))
		for k := range m.requests {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts := strings.SplitN(k, "|", 2)
			count := atomic.LoadUint64(m.requests[k])
			fmt.Fprintf(&b, "relay_http_requests_total{route=%q,status=%q} %d\n", parts[0], parts[1], count)
		}
		m.mu.Unlock()

		b.WriteString("# TYPE relay_inflight_proxy_requests gauge\n")
		fmt.Fprintf(&b, "relay_inflight_proxy_requests %d\n", atomic.LoadInt64(&m.activeStreams))

		if engine != nil && engine.Cooldown != nil {
			b.WriteString("# TYPE relay_cooldown_active gauge\n")
			fmt.Fprintf(&b, "relay_cooldown_active %d\n", len(engine.Cooldown.ActiveKeys()))
		}

		c.Data(http.StatusOK, "text/plain; version=0.0.4", []byte(b.String()))
	}
}
