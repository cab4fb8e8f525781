// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sustainable-computing-io/pmic-logger/internal/sampler"
	"github.com/sustainable-computing-io/pmic-logger/internal/service"
)

// SessionProvider returns the state of the current recording session
type SessionProvider interface {
	Session() sampler.Session
}

type probe struct {
	api      APIService
	sessions SessionProvider
}

var (
	_ service.Service     = (*probe)(nil)
	_ service.Initializer = (*probe)(nil)
)

// NewProbe creates a service exposing health and session status endpoints
func NewProbe(api APIService, sessions SessionProvider) *probe {
	return &probe{
		api:      api,
		sessions: sessions,
	}
}

func (p *probe) Name() string {
	return "probe"
}

func (p *probe) Init() error {
	return p.api.Register("/probe/", "probe", "Health check and session status endpoints", p.handlers())
}

func (p *probe) handlers() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/probe/livez", p.livezHandler)
	mux.HandleFunc("/probe/readyz", p.readyzHandler)
	mux.HandleFunc("/probe/session", p.sessionHandler)
	return mux
}

// SessionStatus is the JSON view of a session
type SessionStatus struct {
	State     string  `json:"state"`
	Start     string  `json:"start,omitempty"`
	Elapsed   string  `json:"elapsed,omitempty"`
	Duration  string  `json:"duration"`
	Interval  string  `json:"interval"`
	Samples   int     `json:"samples"`
	Energy    float64 `json:"energyJoules"`
	WattHours float64 `json:"energyWattHours"`
}

func statusOf(s sampler.Session, now time.Time) SessionStatus {
	status := SessionStatus{
		State:     s.State.String(),
		Duration:  s.Duration.String(),
		Interval:  s.Interval.String(),
		Samples:   s.Samples,
		Energy:    s.Energy,
		WattHours: s.WattHours(),
	}
	if !s.Start.IsZero() {
		status.Start = s.Start.Format(time.RFC3339)
		status.Elapsed = now.Sub(s.Start).Truncate(time.Second).String()
	}
	return status
}

// livezHandler returns 200 as long as the process serves requests
func (p *probe) livezHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "alive"})
}

// readyzHandler returns 200 while samples are being taken or after the
// session finished, and 503 before it starts or once it failed
func (p *probe) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := p.sessions.Session().State
	switch state {
	case sampler.Running, sampler.Finished:
		respond(w, http.StatusOK, map[string]string{"status": "ok", "session": state.String()})
	default:
		respond(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "session": state.String()})
	}
}

func (p *probe) sessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respond(w, http.StatusOK, statusOf(p.sessions.Session(), time.Now()))
}

func respond(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
