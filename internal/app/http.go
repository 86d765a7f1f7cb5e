package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	metrics    http.Handler
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		metrics:    promhttp.Handler(),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"store": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["store"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		s.metrics.ServeHTTP(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/drivers/search" {
		matches, err := s.service.SearchDrivers(r.Context(), r.URL.Query().Get("name"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"matches":   matches,
			"ambiguous": len(matches) > 1,
		})
		return
	}

	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/drivers/") {
		rest := strings.TrimPrefix(r.URL.Path, "/api/drivers/")
		if badge, ok := strings.CutSuffix(rest, "/timeline"); ok && !strings.Contains(badge, "/") {
			view, err := s.service.Timeline(r.Context(), badge)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, view)
			return
		}
	}

	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/vehicles/") {
		rest := strings.TrimPrefix(r.URL.Path, "/api/vehicles/")
		if targa, ok := strings.CutSuffix(rest, "/timeline"); ok && !strings.Contains(targa, "/") {
			view, err := s.service.VehicleTimeline(r.Context(), targa)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, view)
			return
		}
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/alerts" {
		view, err := s.service.Alerts(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	if r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/alerts/") {
		rest := strings.TrimPrefix(r.URL.Path, "/api/alerts/")
		if alertID, ok := strings.CutSuffix(rest, "/ack"); ok && alertID != "" {
			s.handleAlertAction(w, r, alertID, "ack")
			return
		}
		if alertID, ok := strings.CutSuffix(rest, "/snooze"); ok && alertID != "" {
			var body struct {
				Days int `json:"days"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			var action string
			switch body.Days {
			case 1:
				action = "snooze_1d"
			case 3:
				action = "snooze_3d"
			default:
				writeError(w, http.StatusBadRequest, "INVALID_SNOOZE", "days must be 1 or 3", nil)
				return
			}
			s.handleAlertAction(w, r, alertID, action)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleAlertAction(w http.ResponseWriter, r *http.Request, alertID, action string) {
	if err := s.service.AlertAction(r.Context(), alertID, action); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeServiceError(w http.ResponseWriter, err error) {
	var domain *DomainError
	if errors.As(err, &domain) {
		writeError(w, domain.Status, domain.Code, domain.Message, domain.Details)
		return
	}
	writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
