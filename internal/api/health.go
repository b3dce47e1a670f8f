package api

import (
	"context"
	"net/http"
	"time"

	"github.com/hackgods/clinic-appointment-client/internal/remote"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Backend interface {
	Health(ctx context.Context) (remote.HealthStatus, error)
}

type HealthHandler struct {
	store   Pinger
	backend Backend
	env     string
	version string
}

func NewHealthHandler(store Pinger, backend Backend, env, version string) *HealthHandler {
	return &HealthHandler{
		store:   store,
		backend: backend,
		env:     env,
		version: version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	resp := LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	}
	writeJSON(w, http.StatusOK, resp)
}

// Readiness reports "error" when the clinic backend is down, since nothing
// works without it, and "degraded" when only the session store is.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string)
	status := "ok"

	backendCtx, backendCancel := context.WithTimeout(ctx, time.Second)
	hs, err := h.backend.Health(backendCtx)
	backendCancel()
	if err != nil || hs.Status != "healthy" {
		deps["clinic_api"] = "down"
		status = "error"
	} else {
		deps["clinic_api"] = "ok"
	}

	if h.store != nil {
		storeCtx, storeCancel := context.WithTimeout(ctx, time.Second)
		err = h.store.Ping(storeCtx)
		storeCancel()
		if err != nil {
			deps["redis"] = "down"
			if status == "ok" {
				status = "degraded"
			}
		} else {
			deps["redis"] = "ok"
		}
	}

	resp := ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, resp)
}
