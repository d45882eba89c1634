/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package server exposes design persistence over HTTP for the web editor and
// the display-only viewer.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"

	"caseforge/internal/backend"
	"caseforge/internal/casecfg"
	"caseforge/internal/config"
	"caseforge/internal/document"
	applog "caseforge/internal/log"
	"caseforge/internal/storage"
	"caseforge/internal/telemetry"
	"caseforge/internal/vector"
	"caseforge/internal/version"
)

// Server wires a design store and the case catalog to HTTP handlers.
type Server struct {
	Store   storage.Store
	Catalog casecfg.Catalog
	Config  config.ServerConfig

	log *slog.Logger
}

// New returns a server with defaults filled in.
func New(store storage.Store, catalog casecfg.Catalog, cfg config.ServerConfig) *Server {
	if len(catalog.Models) == 0 {
		catalog = casecfg.Default()
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = config.Defaults().Server.MaxUploadMB
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = config.Defaults().Server.AllowedOrigins
	}
	return &Server{Store: store, Catalog: catalog, Config: cfg, log: applog.WithComponent("server")}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.Config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Content-Length", "X-Request-Id", "Origin"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", s.handleCatalog)
		r.Route("/designs", func(r chi.Router) {
			r.Post("/", s.handleSave)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGet)
				r.Get("/design.png", s.handleImage(func(d storage.Design) []byte { return d.DesignPNG }))
				r.Get("/stage.png", s.handleImage(func(d storage.Design) []byte { return d.StagePNG }))
			})
		})
	})
	return r
}

// requestLogger tags the context with chi's request id and logs one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = applog.ContextWithRequestID(ctx, id)
		} else if id := r.Header.Get("X-Request-Id"); id != "" {
			ctx = applog.ContextWithRequestID(ctx, id)
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		s.log.InfoContext(ctx, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("took", time.Since(start)))
	})
}

func errorJSON(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if p, ok := s.Store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.log.WarnContext(r.Context(), "store ping failed", slog.Any("err", err))
			render.Status(r, http.StatusServiceUnavailable)
			status = "degraded"
		}
	}
	render.JSON(w, r, map[string]string{"status": status, "version": version.String()})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.Catalog)
}

// readPart returns a multipart file part, falling back to a plain form value.
func readPart(r *http.Request, name string) ([]byte, error) {
	f, _, err := r.FormFile(name)
	if err == nil {
		defer f.Close()
		return io.ReadAll(f)
	}
	if !errors.Is(err, http.ErrMissingFile) {
		return nil, err
	}
	if v := r.FormValue(name); v != "" {
		return []byte(v), nil
	}
	return nil, fmt.Errorf("missing %s", name)
}

// caseFromForm reads the case as JSON in "case" or as separate model/material/color fields.
func caseFromForm(r *http.Request) (casecfg.Case, error) {
	var c casecfg.Case
	if raw := r.FormValue(backend.FieldCase); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return casecfg.Case{}, fmt.Errorf("decode case: %w", err)
		}
		return c, nil
	}
	c.Model = r.FormValue("model")
	c.Material = vector.Material(r.FormValue("material"))
	c.Color = r.FormValue("color")
	return c, nil
}

func checkPNG(name string, data []byte) error {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s is not a png: %w", name, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%s is empty", name)
	}
	return nil
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := applog.WithOperation(s.log, "save")
	limit := int64(s.Config.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			errorJSON(w, r, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		errorJSON(w, r, http.StatusBadRequest, "expected multipart form data")
		return
	}
	defer func(form *multipart.Form) { _ = form.RemoveAll() }(r.MultipartForm)

	c, err := caseFromForm(r)
	if err != nil {
		errorJSON(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.Catalog.Resolve(c); err != nil {
		errorJSON(w, r, http.StatusBadRequest, err.Error())
		return
	}
	doc, err := readPart(r, backend.FieldDocument)
	if err != nil {
		errorJSON(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := document.Validate(doc); err != nil {
		errorJSON(w, r, http.StatusBadRequest, err.Error())
		return
	}
	images := map[string][]byte{}
	for _, name := range []string{backend.FieldDesign, backend.FieldStage} {
		data, err := readPart(r, name)
		if err == nil {
			err = checkPNG(name, data)
		}
		if err != nil {
			errorJSON(w, r, http.StatusBadRequest, err.Error())
			return
		}
		images[name] = data
	}

	// ids are always minted here; stored designs are never replaced through the API
	id, err := s.Store.Save(ctx, storage.Design{
		ID:        storage.NewID(),
		Case:      c,
		Document:  doc,
		DesignPNG: images[backend.FieldDesign],
		StagePNG:  images[backend.FieldStage],
	})
	if err != nil {
		if errors.Is(err, storage.ErrInvalidID) || errors.Is(err, storage.ErrEmptyDesign) {
			errorJSON(w, r, http.StatusBadRequest, err.Error())
			return
		}
		l.ErrorContext(ctx, "save failed", slog.Any("err", err))
		errorJSON(w, r, http.StatusInternalServerError, "failed to save design")
		return
	}
	applog.WithDesign(l, id).InfoContext(ctx, "design saved", slog.String("model", c.Model))
	if parsed, err := document.Parse(doc); err == nil {
		strokes, images, texts := parsed.Counts()
		telemetry.Event(telemetry.EventDesignSaved, telemetry.DesignProps(c, strokes, images, texts))
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, backend.SaveResponse{ID: id})
}

// load fetches the design in the {id} URL param and writes the error response itself.
func (s *Server) load(w http.ResponseWriter, r *http.Request) (storage.Design, bool) {
	id := chi.URLParam(r, "id")
	d, err := s.Store.Get(r.Context(), id)
	switch {
	case err == nil:
		return d, true
	case errors.Is(err, storage.ErrNotFound):
		errorJSON(w, r, http.StatusNotFound, "design not found")
	case errors.Is(err, storage.ErrInvalidID):
		errorJSON(w, r, http.StatusBadRequest, "invalid design id")
	default:
		applog.WithDesign(s.log, id).ErrorContext(r.Context(), "get failed", slog.Any("err", err))
		errorJSON(w, r, http.StatusInternalServerError, "failed to load design")
	}
	return storage.Design{}, false
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	d, ok := s.load(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, backend.DesignEnvelope{
		ID:        d.ID,
		Case:      d.Case,
		CreatedAt: d.CreatedAt,
		Document:  json.RawMessage(d.Document),
	})
}

func (s *Server) handleImage(pick func(storage.Design) []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := s.load(w, r)
		if !ok {
			return
		}
		data := pick(d)
		if len(data) == 0 {
			errorJSON(w, r, http.StatusNotFound, "image not found")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		_, _ = w.Write(data)
	}
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Config.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", slog.String("addr", srv.Addr))
		telemetry.Event(telemetry.EventServerStarted, nil)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
