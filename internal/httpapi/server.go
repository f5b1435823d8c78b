package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ghostd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	OpenDocument(id, text string, cursor int) error
	CloseDocument(id string) error
	SubmitEdit(ev types.EditEvent) error
	AcceptSuggestion(ctx context.Context, id string) (types.AcceptResponse, error)
	DismissSuggestion(id string) error
	TriggerCompletion(id string) error
	SetProvider(pc types.ProviderConfig) error
	Backends() types.BackendsResponse
	Status(ctx context.Context) (types.StatusResponse, error)
	Subscribe(buffer int) (<-chan types.Event, func())
	ListModels() []types.Model
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(requestLogger)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	// Compression for JSON endpoints; NDJSON streams are left alone.
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/documents/{id}", func(r chi.Router) {
			r.Put("/", func(w http.ResponseWriter, r *http.Request) {
				var req types.OpenDocumentRequest
				if !decodeJSON(w, r, &req) {
					return
				}
				if err := svc.OpenDocument(chi.URLParam(r, "id"), req.Text, req.Cursor); err != nil {
					writeServiceError(w, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})
			r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
				if err := svc.CloseDocument(chi.URLParam(r, "id")); err != nil {
					writeServiceError(w, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})
			r.Post("/edits", func(w http.ResponseWriter, r *http.Request) {
				var ev types.EditEvent
				if !decodeJSON(w, r, &ev) {
					return
				}
				ev.DocumentID = chi.URLParam(r, "id")
				if !validKind(ev.Kind) {
					writeJSONError(w, http.StatusBadRequest, "unknown edit kind: "+string(ev.Kind))
					return
				}
				if err := svc.SubmitEdit(ev); err != nil {
					writeServiceError(w, err)
					return
				}
				w.WriteHeader(http.StatusAccepted)
			})
			r.Post("/accept", func(w http.ResponseWriter, r *http.Request) {
				resp, err := svc.AcceptSuggestion(r.Context(), chi.URLParam(r, "id"))
				if err != nil {
					writeServiceError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, resp)
			})
			r.Post("/dismiss", func(w http.ResponseWriter, r *http.Request) {
				if err := svc.DismissSuggestion(chi.URLParam(r, "id")); err != nil {
					writeServiceError(w, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})
			r.Post("/complete", func(w http.ResponseWriter, r *http.Request) {
				if err := svc.TriggerCompletion(chi.URLParam(r, "id")); err != nil {
					writeServiceError(w, err)
					return
				}
				w.WriteHeader(http.StatusAccepted)
			})
		})

		r.Put("/provider", func(w http.ResponseWriter, r *http.Request) {
			var pc types.ProviderConfig
			if !decodeJSON(w, r, &pc) {
				return
			}
			if err := svc.SetProvider(pc); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, svc.Backends())
		})

		r.Get("/backends", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, svc.Backends())
		})

		r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, types.ModelsResponse{Models: svc.ListModels()})
		})

		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			st, err := svc.Status(r.Context())
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, st)
		})

		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			streamEvents(w, r, svc)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("no backend"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// streamEvents writes coordinator events as NDJSON until the client goes
// away or the server shuts down. ?document= restricts the stream to one
// document; provider-wide status events are always included.
func streamEvents(w http.ResponseWriter, r *http.Request, svc Service) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	only := r.URL.Query().Get("document")
	events, cancel := svc.Subscribe(eventBuffer)
	defer cancel()
	eventStreams.Inc()
	defer eventStreams.Dec()

	ctx, stop := joinContexts(serverBaseCtx, r.Context())
	defer stop()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	out := io.Writer(w)
	if requestLogLevel(r) >= LevelDebug {
		out = io.MultiWriter(w, &loggingLineWriter{})
	}
	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if only != "" && eventDocument(e) != "" && eventDocument(e) != only {
				continue
			}
			if err := enc.Encode(e); err != nil {
				return
			}
			eventsWritten.WithLabelValues(string(e.Type)).Inc()
			flusher.Flush()
		}
	}
}

func eventDocument(e types.Event) string {
	switch {
	case e.Ghost != nil:
		return e.Ghost.DocumentID
	case e.Status != nil:
		return e.Status.DocumentID
	}
	return ""
}

func validKind(k types.EditKind) bool {
	switch k {
	case types.EditInsert, types.EditDelete, types.EditReplace, types.EditPaste, types.EditCursor, types.EditSelection:
		return true
	}
	return false
}

// decodeJSON enforces the content type and body limit and decodes into v.
// It writes the error response itself and reports whether to continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Oversized bodies also land here; report them as 400 without details.
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
