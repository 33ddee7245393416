package httpserver

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	apphistory "github.com/paperlens/paperlens/internal/application/history"
	"github.com/paperlens/paperlens/internal/application/papers"
	"github.com/paperlens/paperlens/internal/domain/analysis"
	"github.com/paperlens/paperlens/internal/domain/document"
	"github.com/paperlens/paperlens/internal/middleware"
)

//go:embed ui/index.html
var uiFS embed.FS

type Router struct {
	papersSvc  *papers.Service
	historySvc *apphistory.Service // nil when no database is configured
}

func NewRouter(papersSvc *papers.Service, historySvc *apphistory.Service, apiKey string, checkers map[string]middleware.HealthChecker) http.Handler {
	r := &Router{papersSvc: papersSvc, historySvc: historySvc}
	mux := chi.NewRouter()

	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	mux.Get("/health", middleware.HealthHandler(checkers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Use(middleware.APIKeyAuth(apiKey))
		rt.Use(middleware.RateLimitMiddleware(30, 10))
		rt.Post("/papers", r.wrap(r.handleUpload))
		rt.Get("/papers/{id}", r.wrap(r.handleGet))
		rt.Get("/papers/{id}/pages/{page}", r.wrap(r.handleRenderPage))
		rt.Post("/papers/{id}/language", r.wrap(r.handleToggleLanguage))
		rt.Delete("/papers/{id}", r.wrap(r.handleReset))
		rt.Get("/analyses", r.wrap(r.handleHistory))
	})

	mux.Get("/", r.handleUI)

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap maps domain errors onto HTTP statuses in one place
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		switch {
		case errors.Is(err, papers.ErrSessionNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, document.ErrPageOutOfRange):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, document.ErrRenderCancelled):
			// superseded render, silent no-op for the client
			http.Error(w, "render superseded", http.StatusConflict)
		case errors.Is(err, document.ErrLoad):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, papers.ErrTranslationInFlight), errors.Is(err, papers.ErrNotReady):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, papers.ErrPreviewUnavailable):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		case errors.Is(err, analysis.ErrMissingCredential):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		case errors.Is(err, analysis.ErrUpstream), errors.Is(err, analysis.ErrSchemaViolation):
			http.Error(w, err.Error(), http.StatusBadGateway)
		case errors.Is(err, errBadRequest):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// errBadRequest marks validation failures for the wrap switch
var errBadRequest = errors.New("bad request")

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", errBadRequest, err)
}

// POST /v1/papers
// multipart/form-data with a single "file" part. Rejects anything that is
// not a PDF before any session state is created.
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	if err := req.ParseMultipartForm(middleware.MaxUploadBytes); err != nil {
		return badRequest(fmt.Errorf("parse upload: %v", err))
	}
	file, header, err := req.FormFile("file")
	if err != nil {
		return badRequest(fmt.Errorf("missing file part: %v", err))
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, middleware.MaxUploadBytes+1))
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}

	filename := middleware.SanitizeFilename(header.Filename)
	if err := middleware.ValidatePDFUpload(filename, header.Header.Get("Content-Type"), data); err != nil {
		return badRequest(err)
	}

	snap, err := r.papersSvc.Open(req.Context(), filename, data)
	if err != nil {
		return err
	}
	middleware.IncrementUploads()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	return json.NewEncoder(w).Encode(snap)
}

// GET /v1/papers/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	snap, err := r.papersSvc.Get(chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(snap)
}

// GET /v1/papers/{id}/pages/{page}?zoom=1.5
func (r *Router) handleRenderPage(w http.ResponseWriter, req *http.Request) error {
	page, err := middleware.ValidatePageNumber(chi.URLParam(req, "page"))
	if err != nil {
		return badRequest(err)
	}
	zoom, err := middleware.ValidateZoom(req.URL.Query().Get("zoom"))
	if err != nil {
		return badRequest(err)
	}

	bitmap, err := r.papersSvc.RenderPage(req.Context(), chi.URLParam(req, "id"), page, zoom)
	if err != nil {
		if errors.Is(err, document.ErrRenderCancelled) {
			middleware.IncrementRendersCancelled()
		}
		return err
	}
	middleware.IncrementRenders()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, err = w.Write(bitmap)
	return err
}

// POST /v1/papers/{id}/language
// Body: {"language": "source"|"target"}
func (r *Router) handleToggleLanguage(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Language string `json:"language"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest(fmt.Errorf("decode body: %v", err))
	}
	lang, err := middleware.ValidateLanguage(body.Language)
	if err != nil {
		return badRequest(err)
	}

	snap, err := r.papersSvc.ToggleLanguage(req.Context(), chi.URLParam(req, "id"), lang)
	if err != nil {
		return err
	}
	if lang == analysis.LanguageTarget {
		middleware.IncrementTranslations()
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(snap)
}

// DELETE /v1/papers/{id}
func (r *Router) handleReset(w http.ResponseWriter, req *http.Request) error {
	if err := r.papersSvc.Reset(chi.URLParam(req, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /v1/analyses?page=&page_size=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	if r.historySvc == nil {
		http.Error(w, "history not configured", http.StatusNotFound)
		return nil
	}
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.historySvc.List(req.Context(), page, size)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// GET /
func (r *Router) handleUI(w http.ResponseWriter, req *http.Request) {
	page, err := uiFS.ReadFile("ui/index.html")
	if err != nil {
		http.Error(w, "ui unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}
