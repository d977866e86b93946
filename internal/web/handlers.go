package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sweeney/feeder/internal/config"
	"github.com/sweeney/feeder/internal/gpio"
	"github.com/sweeney/feeder/internal/power"
	"github.com/sweeney/feeder/internal/rtc"
	"github.com/sweeney/feeder/internal/status"
)

type errorBody struct {
	Error string `json:"error"`
}

type okBody struct {
	OK bool `json:"ok"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError maps core errors to status codes: validation 400, RTC, relay or
// a sleeping loop 503, everything else (storage) 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, config.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, rtc.ErrHardware), errors.Is(err, gpio.ErrHardware), errors.Is(err, power.ErrSleeping):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	if code >= 500 {
		s.log.Errorw("request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", config.ErrValidation, err)
	}
	return data, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.core.Touch()
	snap := s.core.Status()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.Errorw("render status page", "err", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.core.Status()))
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	data, err := s.core.Schedule()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleSetSchedule(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()
	if err := s.core.SetSchedule(ctx, body); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

func (s *Server) handleGetSystem(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.System())
}

func (s *Server) handleSetSystem(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()
	if err := s.core.SetSystem(ctx, body); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.core.System())
}

func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	t, err := s.core.Time()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAutoSleep(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Remaining int `json:"remaining"`
	}{s.core.RemainingIdle()})
}

func (s *Server) handleManualFeed(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		On *bool `json:"on"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.On == nil {
		s.writeError(w, r, fmt.Errorf("%w: expected {\"on\": true|false}", config.ErrValidation))
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()
	if err := s.core.ManualFeed(ctx, *req.On); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

func (s *Server) handleFeedCycle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()
	started, err := s.core.Feed(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Started bool `json:"started"`
	}{started})
}

func (s *Server) handleSleep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()
	if err := s.core.Sleep(ctx); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Infow("sleep requested", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, okBody{OK: true})
}
