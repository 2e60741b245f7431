// Package health wires Kubernetes-style liveness and readiness probes
// into the HTTP server.
//
// Liveness (GET /healthz) only proves the process is up and able to serve
// a request. Readiness (GET /readyz) walks every registered [Checker] and
// answers 503 when any dependency fails, so load balancers stop routing
// traffic to an instance that cannot do useful work. Both endpoints reply
// with a JSON body carrying a "status" field and, for readiness, a
// per-check "checks" map.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds each individual readiness check. A hung dependency
// must not stall the probe endpoint past the kubelet's own deadline.
const probeTimeout = 5 * time.Second

// Checker couples a dependency label with the probe that verifies it.
type Checker struct {
	// Name keys the check's outcome in the /readyz response body.
	Name string

	// Check returns nil when the dependency can serve traffic. It must
	// honor ctx, which carries a [probeTimeout] deadline.
	Check func(ctx context.Context) error
}

// Handler answers liveness and readiness probes. Construct it with [New]
// and mount it with [Register]. A Handler with no checkers reports ready
// unconditionally.
type Handler struct {
	checkers []Checker
}

// New builds a Handler over the given checkers. Order is preserved:
// /readyz runs them one at a time, first to last.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register mounts the probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz reports liveness. Reaching this handler at all is the proof, so
// it answers 200 unconditionally.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every checker and answers 200 only when all of them pass.
// Each check's outcome appears under its name in the response body, and a
// failing check never short-circuits the ones after it.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	code := http.StatusOK

	for _, c := range h.checkers {
		if err := h.probe(r.Context(), c); err != nil {
			rep.Checks[c.Name] = "fail: " + err.Error()
			rep.Status = "fail"
			code = http.StatusServiceUnavailable
		} else {
			rep.Checks[c.Name] = "ok"
		}
	}

	respond(w, code, rep)
}

// probe runs a single check under the probe deadline.
func (h *Handler) probe(ctx context.Context, c Checker) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return c.Check(ctx)
}

// report is the wire shape of both probe responses.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func respond(w http.ResponseWriter, code int, rep report) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
