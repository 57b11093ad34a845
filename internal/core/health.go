package core

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// healthCheckTimeout bounds all probes together.
const healthCheckTimeout = 5 * time.Second

// HealthProbe is a dependency the health endpoint checks. external.Pinger
// satisfies it.
type HealthProbe interface {
	Ping(ctx context.Context) error
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Time       time.Time                  `json:"time"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth pings every probe concurrently. It returns 200 when all are
// healthy and 503 otherwise; a probe that misses the deadline is unhealthy.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.HealthProbes))
	for name := range s.HealthProbes {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		mu         sync.Mutex
		components = make(map[string]componentStatus, len(names))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		probe := s.HealthProbes[name]
		g.Go(func() error {
			err := pingSafely(gctx, probe)
			st := componentStatus{Status: "healthy"}
			if err != nil {
				st = componentStatus{Status: "unhealthy", Message: err.Error()}
			}
			mu.Lock()
			components[name] = st
			mu.Unlock()
			// Probe failures are reported per component, not through the group.
			return nil
		})
	}
	_ = g.Wait()

	resp := healthResponse{Status: "healthy", Time: time.Now().UTC(), Components: components}
	if s.Config != nil {
		resp.Version = s.Config.Build.Version
	}
	status := http.StatusOK
	for _, c := range components {
		if c.Status != "healthy" {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			break
		}
	}
	JSON(w, r, status, resp)
}

// pingSafely runs probe.Ping, converting a panic into an error and giving up
// when ctx expires.
func pingSafely(ctx context.Context, probe HealthProbe) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("probe panicked: %v", p)
			}
		}()
		done <- probe.Ping(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("health check timed out")
	}
}
