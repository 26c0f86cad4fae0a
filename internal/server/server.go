// Package server exposes consultation sections over HTTP: GET opens a
// session and renders it, POST applies the submitted form to that session.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-consultform/internal/coerce"
	"github.com/goliatone/go-consultform/pkg/catalog"
	"github.com/goliatone/go-consultform/pkg/orchestrator"
	"github.com/goliatone/go-consultform/pkg/render"
	"github.com/goliatone/go-consultform/pkg/schema"
	"github.com/goliatone/go-consultform/pkg/session"
	"github.com/goliatone/go-consultform/pkg/units"
)

const (
	// RevealField names the submit button that reveals a hidden item.
	RevealField = "_reveal"
	// UnitSuffix marks the unit toggle submitted alongside a numeric field.
	UnitSuffix = "__unit"
	// ShownUnitSuffix marks the unit a numeric field was rendered in.
	ShownUnitSuffix = "__shown_unit"

	maxFormBytes = 1 << 20
)

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the request and handler logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithBasePath mounts the section routes under prefix.
func WithBasePath(prefix string) Option {
	return func(s *Server) {
		s.basePath = "/" + strings.Trim(prefix, "/")
		if s.basePath == "/" {
			s.basePath = ""
		}
	}
}

// Server serves consultation sections backed by an orchestrator.
type Server struct {
	orch     *orchestrator.Orchestrator
	logger   zerolog.Logger
	basePath string
	router   chi.Router
}

// New builds the router for orch.
func New(orch *orchestrator.Orchestrator, options ...Option) *Server {
	s := &Server{
		orch:   orch,
		logger: zerolog.Nop(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(s)
		}
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route(s.basePath+"/sections", func(r chi.Router) {
		r.Get("/", s.listSections)
		r.Get("/{code}", s.openSection)
		r.Post("/{code}", s.submitSection)
		r.Delete("/{code}/sessions/{id}", s.cancelSession)
	})
	return r
}

func (s *Server) listSections(w http.ResponseWriter, r *http.Request) {
	cat, err := s.orch.Catalog()
	if err != nil {
		s.fail(w, err)
		return
	}
	tpl, err := cat.Fetch(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sections": tpl.SectionCodes()})
}

// openSection starts a session seeded from the query string, which accepts
// "item.key" or flat field keys.
func (s *Server) openSection(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	initial := initialValues(r.URL.Query())

	sess, err := s.orch.Open(r.Context(), code, initial)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.render(w, r, sess, http.StatusOK)
}

func (s *Server) submitSection(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("invalid form: %v", err)))
		return
	}

	id := r.PostForm.Get(render.SessionField)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("missing "+render.SessionField))
		return
	}

	var (
		result   session.Result
		rendered []byte
		status   = http.StatusOK
		finished bool
	)
	err := s.orch.Use(id, func(sess *session.Session) error {
		if sess.Section().Code != chi.URLParam(r, "code") {
			return errSectionMismatch
		}
		if err := applyForm(r.Context(), sess, r.PostForm); err != nil {
			return err
		}

		if reveal := r.PostForm.Get(RevealField); reveal != "" {
			if err := sess.RevealHidden(r.Context(), reveal); err != nil {
				return err
			}
			out, err := s.orch.Render(r.Context(), sess, s.rendererName(r), s.renderOptions(r))
			rendered = out
			return err
		}

		res, err := sess.Submit()
		if err != nil {
			return err
		}
		if res.OK {
			result, finished = res, true
			return nil
		}
		status = http.StatusUnprocessableEntity
		out, err := s.orch.Render(r.Context(), sess, s.rendererName(r), s.renderOptions(r))
		rendered = out
		return err
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	if finished {
		s.orch.Close(id)
		s.logger.Info().Str("session", id).Int("items", len(result.Payload)).Msg("section saved")
		writeJSON(w, http.StatusOK, result)
		return
	}
	s.writeRendered(w, r, status, rendered)
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	s.orch.Close(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

var (
	errSectionMismatch = errors.New("server: session belongs to another section")
	errBadInput        = errors.New("server: invalid input")
)

// applyForm reads posted values in the unit the page was rendered in, then
// applies unit toggles. A toggle alone never changes a stored value.
func applyForm(ctx context.Context, sess *session.Session, form url.Values) error {
	section := sess.Section()

	visible := make(map[string]struct{})
	for _, ref := range sess.TabOrder() {
		visible[ref.String()] = struct{}{}
	}

	for _, item := range section.Items {
		for _, field := range item.Fields {
			if field.Kind == schema.KindCalculated {
				continue
			}
			ref := item.Code + "." + field.Key
			submitted, present := form[ref]
			if !present {
				// Unchecked checkboxes submit nothing.
				if _, shown := visible[ref]; !shown || field.Kind != schema.KindMultiSelect {
					continue
				}
			}

			var value any
			switch {
			case field.Kind == schema.KindMultiSelect:
				value = submitted
			case len(submitted) > 0:
				value = submitted[0]
			}

			if field.Kind == schema.KindNumber {
				if err := restoreShownUnit(sess, item.Code, field.Key, form.Get(ref+ShownUnitSuffix)); err != nil {
					return err
				}
				if unchanged(sess, item.Code, field.Key, value) {
					continue
				}
			}
			if err := sess.SetField(item.Code, field.Key, value); err != nil {
				return fmt.Errorf("%w: %w", errBadInput, err)
			}
		}
	}

	for _, item := range section.Items {
		for _, field := range item.Fields {
			ref := item.Code + "." + field.Key
			unit := strings.TrimSpace(form.Get(ref + UnitSuffix))
			if unit == "" || units.Same(unit, sess.DisplayUnit(item.Code, field.Key)) {
				continue
			}
			if err := sess.SetDisplayUnit(item.Code, field.Key, unit); err != nil {
				return fmt.Errorf("%w: %w", errBadInput, err)
			}
		}
	}
	return ctx.Err()
}

// restoreShownUnit makes the session read the next value in the unit the
// form showed it in, when the page says so.
func restoreShownUnit(sess *session.Session, item, key, shown string) error {
	shown = strings.TrimSpace(shown)
	if shown == "" || units.Same(shown, sess.DisplayUnit(item, key)) {
		return nil
	}
	if err := sess.SetDisplayUnit(item, key, shown); err != nil {
		return fmt.Errorf("%w: %w", errBadInput, err)
	}
	return nil
}

// unchanged reports whether a posted number is exactly what was rendered, so
// display rounding is not written back into the stored value.
func unchanged(sess *session.Session, item, key string, posted any) bool {
	text, ok := posted.(string)
	if !ok {
		return false
	}
	current, ok := sess.DisplayValue(item, key)
	if !ok || current == nil {
		return false
	}
	n, ok := coerce.Number(current)
	if !ok {
		return false
	}
	return strings.TrimSpace(text) == units.FormatNumber(n)
}

func initialValues(query url.Values) map[string]any {
	if len(query) == 0 {
		return nil
	}
	out := make(map[string]any)
	for key, values := range query {
		if key == "format" || len(values) == 0 {
			continue
		}
		item, field, nested := strings.Cut(key, ".")
		var value any = values[0]
		if len(values) > 1 {
			value = values
		}
		if !nested {
			out[key] = value
			continue
		}
		fields, _ := out[item].(map[string]any)
		if fields == nil {
			fields = make(map[string]any)
			out[item] = fields
		}
		fields[field] = value
	}
	return out
}

func (s *Server) rendererName(r *http.Request) string {
	if r.URL.Query().Get("format") == "json" || strings.Contains(r.Header.Get("Accept"), "application/json") {
		return "json"
	}
	return ""
}

func (s *Server) renderOptions(r *http.Request) render.RenderOptions {
	return render.RenderOptions{
		Action: s.basePath + "/sections/" + chi.URLParam(r, "code"),
		Method: http.MethodPost,
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, sess *session.Session, status int) {
	out, err := s.orch.Render(r.Context(), sess, s.rendererName(r), s.renderOptions(r))
	if err != nil {
		s.orch.Close(sess.ID)
		s.fail(w, err)
		return
	}
	s.writeRendered(w, r, status, out)
}

func (s *Server) writeRendered(w http.ResponseWriter, r *http.Request, status int, body []byte) {
	contentType, err := s.orch.ContentType(s.rendererName(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrator.ErrSessionNotFound), errors.Is(err, catalog.ErrSectionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errSectionMismatch), errors.Is(err, errBadInput),
		errors.Is(err, session.ErrUnknownField), errors.Is(err, session.ErrUnsupportedUnit):
		status = http.StatusBadRequest
	case errors.Is(err, catalog.ErrSchemaUnavailable):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ListenAndServe runs handler on addr until ctx is done, then shuts down
// gracefully within grace.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, grace time.Duration, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
