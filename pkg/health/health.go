// Package health serves liveness and readiness endpoints.
//
// Checks run periodically in the background; endpoint handlers only read the
// last outcome. A check turns unhealthy after FailureThreshold consecutive
// failures and healthy again after one success.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// FailureThreshold is the number of consecutive failures that mark a check
// unhealthy.
const FailureThreshold = 3

// CheckFunc reports whether a component is healthy.
type CheckFunc func(ctx context.Context) error

type outcome struct {
	healthy bool
	err     error
}

type check struct {
	name    string
	kind    string
	timeout time.Duration
	fn      CheckFunc

	last atomic.Pointer[outcome]
	// fails is only touched by the goroutine running the check.
	fails int
}

func newCheck(kind, name string, timeout time.Duration, fn CheckFunc) *check {
	c := &check{name: name, kind: kind, timeout: timeout, fn: fn}
	c.last.Store(&outcome{healthy: true})
	return c
}

func (c *check) run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err := c.fn(runCtx)
	cancel()

	was := c.last.Load().healthy
	healthy := was
	if err != nil {
		c.fails++
		if c.fails >= FailureThreshold {
			healthy = false
		}
	} else {
		c.fails = 0
		healthy = true
	}
	c.last.Store(&outcome{healthy: healthy, err: err})

	if healthy == was {
		return
	}
	lg := zctx.From(ctx).With(zap.String("check", c.name), zap.String("kind", c.kind))
	if healthy {
		lg.Info("Health check recovered")
	} else {
		lg.Warn("Health check failing", zap.Error(err))
	}
}

func (c *check) status() (bool, string) {
	o := c.last.Load()
	if o.healthy {
		return true, ""
	}
	if o.err != nil {
		return false, o.err.Error()
	}
	return false, "check is unhealthy"
}

// Health tracks liveness and readiness of the service.
type Health struct {
	ready atomic.Bool

	mu        sync.Mutex
	liveness  []*check
	readiness []*check
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New returns a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check that decides whether the process should
// be restarted. Register checks before Start.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newCheck("liveness", name, timeout, fn))
}

// AddReadinessCheck registers a check that decides whether the service may
// receive traffic. Register checks before Start.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newCheck("readiness", name, timeout, fn))
}

// Start runs every check immediately and then every interval until Stop or
// ctx cancellation.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}

	ctx, h.cancel = context.WithCancel(ctx)
	for _, c := range h.all() {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				c.run(ctx)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// Stop cancels the background checks and waits for them to exit. It is safe
// to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.wg.Wait()
}

func (h *Health) all() []*check {
	out := make([]*check, 0, len(h.liveness)+len(h.readiness))
	out = append(out, h.liveness...)
	return append(out, h.readiness...)
}

func (h *Health) snapshot(readiness bool) []*check {
	h.mu.Lock()
	defer h.mu.Unlock()
	if readiness {
		return append([]*check(nil), h.readiness...)
	}
	return append([]*check(nil), h.liveness...)
}

// SetReady flips the manual readiness gate, e.g. to false at the start of a
// graceful shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the gate is open and every readiness check passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(failures(h.snapshot(true))) == 0
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, failures(h.snapshot(false)))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failed := failures(h.snapshot(true))
	if !h.ready.Load() {
		failed["_readiness"] = "service is not ready"
	}
	writeStatus(w, failed)
}

func failures(checks []*check) map[string]string {
	out := make(map[string]string)
	for _, c := range checks {
		if ok, msg := c.status(); !ok {
			out[c.name] = msg
		}
	}
	return out
}

// writeStatus writes {"status":"ok"} or 503 with {"status":"unhealthy",
// "checks":{name: error}}.
func writeStatus(w http.ResponseWriter, failed map[string]string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	status := http.StatusOK
	e.ObjStart()
	e.FieldStart("status")
	if len(failed) == 0 {
		e.Str("ok")
	} else {
		status = http.StatusServiceUnavailable
		e.Str("unhealthy")

		names := make([]string, 0, len(failed))
		for name := range failed {
			names = append(names, name)
		}
		sort.Strings(names)

		e.FieldStart("checks")
		e.ObjStart()
		for _, name := range names {
			e.FieldStart(name)
			e.Str(failed[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
