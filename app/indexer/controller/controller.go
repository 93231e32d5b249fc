package controller

import (
	"context"
	"net/http"

	"github.com/canopy-network/balancex/pkg/indexer/pipeline"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Pinger is a backing service the indexer cannot run without.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// StatusSource exposes the runner's progress.
type StatusSource interface {
	Snapshot() pipeline.Snapshot
}

type Controller struct {
	Logger *zap.Logger
	// Dependencies are checked by /health, keyed by name.
	Dependencies map[string]Pinger
	Status       StatusSource
}

// NewController returns a new controller.
func NewController(logger *zap.Logger, status StatusSource, deps map[string]Pinger) *Controller {
	return &Controller{
		Logger:       logger,
		Dependencies: deps,
		Status:       status,
	}
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/health", http.HandlerFunc(c.HandleHealth)).Methods("GET")
	r.Handle("/status", http.HandlerFunc(c.HandleStatus)).Methods("GET")

	return r, nil
}

func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	w.Header().Set("Content-Type", "application/json")

	for name, dep := range c.Dependencies {
		if err := dep.Ping(ctx); err != nil {
			c.Logger.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "errored", "error": name + " connection error"})
			return
		}
	}

	if snap := c.Status.Snapshot(); !snap.Running {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "stopped", "error": snap.LastError})
		return
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (c *Controller) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(c.Status.Snapshot())
}
