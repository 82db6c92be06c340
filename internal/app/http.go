package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/cam3ron2/iteration-report/internal/pipeline"
	"github.com/cam3ron2/iteration-report/internal/schedule"
	"github.com/cam3ron2/iteration-report/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// NewHTTPHandler wires metrics, health and report API endpoints on a single mux.
func NewHTTPHandler(metricsHandler, healthHandler, reportsHandler http.Handler) http.Handler {
	router := chi.NewRouter()
	traceMode := telemetry.TraceMode()
	router.Handle("/metrics", wrapHTTPHandler(traceMode, "metrics", metricsHandler))
	router.Handle("/livez", wrapHTTPHandler(traceMode, "livez", healthHandler))
	router.Handle("/readyz", wrapHTTPHandler(traceMode, "readyz", healthHandler))
	router.Handle("/healthz", wrapHTTPHandler(traceMode, "healthz", healthHandler))
	if reportsHandler != nil {
		router.Mount("/api", wrapHTTPHandler(traceMode, "api", reportsHandler))
	}
	return router
}

type errorResponse struct {
	Error string `json:"error"`
}

type previewResponse struct {
	Report string `json:"report"`
}

// newReportsAPI serves the publish trigger, preview, last result and schedule.
func newReportsAPI(r *Runtime) http.Handler {
	router := chi.NewRouter()

	router.Post("/reports/publish", func(w http.ResponseWriter, req *http.Request) {
		force, err := parseForce(req.URL.Query().Get("force"))
		if err != nil {
			writeJSON(w, r.logger, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		result, err := r.Publish(req.Context(), force)
		switch {
		case errors.Is(err, pipeline.ErrRunInProgress):
			writeJSON(w, r.logger, http.StatusConflict, errorResponse{Error: err.Error()})
		case err != nil:
			writeJSON(w, r.logger, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		default:
			writeJSON(w, r.logger, http.StatusOK, result)
		}
	})

	router.Get("/reports/preview", func(w http.ResponseWriter, req *http.Request) {
		if r.runner == nil {
			writeJSON(w, r.logger, http.StatusServiceUnavailable, errorResponse{Error: "report runner is not configured"})
			return
		}
		body, err := r.runner.Preview(req.Context())
		if err != nil {
			writeJSON(w, r.logger, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		if strings.Contains(req.Header.Get("Accept"), "text/markdown") || req.URL.Query().Get("format") == "text" {
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte(body)); err != nil {
				return
			}
			return
		}
		writeJSON(w, r.logger, http.StatusOK, previewResponse{Report: body})
	})

	router.Get("/reports/last", func(w http.ResponseWriter, _ *http.Request) {
		result, ok := r.LastResult()
		if !ok {
			writeJSON(w, r.logger, http.StatusNotFound, errorResponse{Error: "no report run yet"})
			return
		}
		writeJSON(w, r.logger, http.StatusOK, result)
	})

	router.Get("/schedule", func(w http.ResponseWriter, _ *http.Request) {
		if r.runner == nil {
			writeJSON(w, r.logger, http.StatusServiceUnavailable, errorResponse{Error: "report runner is not configured"})
			return
		}
		state, err := r.runner.Schedule()
		switch {
		case errors.Is(err, schedule.ErrNotFound):
			writeJSON(w, r.logger, http.StatusNotFound, errorResponse{Error: err.Error()})
		case err != nil:
			writeJSON(w, r.logger, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		default:
			writeJSON(w, r.logger, http.StatusOK, state)
		}
	})

	return router
}

func parseForce(raw string) (bool, error) {
	if strings.TrimSpace(raw) == "" {
		return false, nil
	}
	force, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New("force must be a boolean")
	}
	return force, nil
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error("marshal response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:gosec // Response payload is server-generated JSON.
	if _, err := w.Write(body); err != nil {
		logger.Debug("write response", zap.Error(err))
	}
}

func wrapHTTPHandler(traceMode, route string, handler http.Handler) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	if strings.EqualFold(strings.TrimSpace(traceMode), "off") {
		return handler
	}

	operation := strings.TrimSpace(route)
	if operation == "" {
		operation = "handler"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := otel.Tracer("iteration-report/internal/app").Start(
			r.Context(),
			"http.server."+operation,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		recorder := &statusCapturingResponseWriter{
			ResponseWriter: w,
			status:         http.StatusOK,
		}
		handler.ServeHTTP(recorder, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", recorder.status))
		if recorder.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(recorder.status))
			return
		}
		span.SetStatus(codes.Ok, "request completed")
	})
}

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingResponseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
