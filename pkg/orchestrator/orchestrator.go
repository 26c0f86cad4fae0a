package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-consultform/internal/schema/loader"
	"github.com/goliatone/go-consultform/pkg/catalog"
	"github.com/goliatone/go-consultform/pkg/prefs"
	"github.com/goliatone/go-consultform/pkg/render"
	"github.com/goliatone/go-consultform/pkg/renderers/html"
	"github.com/goliatone/go-consultform/pkg/renderers/jsonview"
	"github.com/goliatone/go-consultform/pkg/schema"
	"github.com/goliatone/go-consultform/pkg/session"
	"github.com/goliatone/go-consultform/pkg/units"
)

const (
	defaultRendererName = "html"
	defaultHTTPTimeout  = 10 * time.Second
	defaultSessionTTL   = 30 * time.Minute
	defaultMaxSessions  = 1000
)

// ErrSessionNotFound is returned when an ID names no open session.
var ErrSessionNotFound = errors.New("orchestrator: session not found")

// Option customises the orchestrator configuration.
type Option func(*Orchestrator)

// WithLoader injects a custom template loader.
func WithLoader(l schema.Loader) Option {
	return func(o *Orchestrator) {
		o.loader = l
	}
}

// WithSource sets where the consultation template is fetched from.
func WithSource(src schema.Source) Option {
	return func(o *Orchestrator) {
		o.source = src
	}
}

// WithCatalog injects a pre-built catalog; loader, source and tiers options
// are then ignored.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(o *Orchestrator) {
		o.catalog = cat
	}
}

// WithTiers replaces the default required/optional lists.
func WithTiers(cfg catalog.TierConfig) Option {
	return func(o *Orchestrator) {
		o.tiers = &cfg
	}
}

// WithOverrides registers specialty range overrides.
func WithOverrides(overrides units.Overrides) Option {
	return func(o *Orchestrator) {
		o.overrides = overrides
	}
}

// WithSpecialty selects the specialty whose overrides apply.
func WithSpecialty(specialty string) Option {
	return func(o *Orchestrator) {
		o.specialty = specialty
	}
}

// WithPrefs sets the preference store shared by every session.
func WithPrefs(store prefs.Store) Option {
	return func(o *Orchestrator) {
		o.prefs = store
	}
}

// WithRegistry injects a renderer registry.
func WithRegistry(registry *render.Registry) Option {
	return func(o *Orchestrator) {
		o.registry = registry
	}
}

// WithDefaultRenderer overrides the renderer used when a request omits an
// explicit Renderer field.
func WithDefaultRenderer(name string) Option {
	return func(o *Orchestrator) {
		o.defaultRenderer = name
	}
}

// WithTransformers registers view transformers run before every render.
func WithTransformers(transformers ...Transformer) Option {
	return func(o *Orchestrator) {
		o.transformers = append(o.transformers, transformers...)
	}
}

// WithSessionTTL sets how long an open session may sit unused before it is
// cancelled and forgotten. Zero or negative disables idle expiry.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.sessionTTL = ttl
	}
}

// WithMaxSessions caps how many sessions stay open. Opening one more evicts
// the least recently used. Zero or negative removes the cap.
func WithMaxSessions(n int) Option {
	return func(o *Orchestrator) {
		o.maxSessions = n
	}
}

// WithClock replaces the time source used for session expiry.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger attaches a logger passed down to the catalog and sessions.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// Orchestrator coordinates template fetch, session lifecycle and rendering.
// It applies defaults (HTTP-capable loader, html and json renderers) while
// remaining open to dependency injection.
type Orchestrator struct {
	loader          schema.Loader
	source          schema.Source
	catalog         *catalog.Catalog
	tiers           *catalog.TierConfig
	overrides       units.Overrides
	specialty       string
	prefs           prefs.Store
	registry        *render.Registry
	defaultRenderer string
	transformers    []Transformer
	logger          zerolog.Logger
	controller      *session.Controller
	initialiseErr   error
	sessionTTL      time.Duration
	maxSessions     int
	now             func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	mu sync.Mutex
	s  *session.Session

	// lastUsed is guarded by Orchestrator.mu.
	lastUsed time.Time
}

// New constructs an Orchestrator. Construction errors (for example a missing
// source) surface from the first call that needs the missing piece.
func New(options ...Option) *Orchestrator {
	o := &Orchestrator{
		defaultRenderer: defaultRendererName,
		logger:          zerolog.Nop(),
		sessionTTL:      defaultSessionTTL,
		maxSessions:     defaultMaxSessions,
		now:             time.Now,
		sessions:        make(map[string]*entry),
	}
	for _, opt := range options {
		if opt != nil {
			opt(o)
		}
	}
	o.applyDefaults()
	return o
}

func (o *Orchestrator) applyDefaults() {
	if o.loader == nil {
		o.loader = loader.New(schema.NewLoaderOptions(schema.WithHTTPFallback(defaultHTTPTimeout)))
	}
	if o.prefs == nil {
		o.prefs = prefs.NewMemory()
	}
	if o.catalog == nil {
		opts := []catalog.Option{
			catalog.WithLoader(o.loader),
			catalog.WithSource(o.source),
			catalog.WithLogger(o.logger),
		}
		if o.tiers != nil {
			opts = append(opts, catalog.WithTiers(*o.tiers))
		}
		cat, err := catalog.New(opts...)
		if err != nil {
			o.initialiseErr = fmt.Errorf("orchestrator: %w", err)
			return
		}
		o.catalog = cat
	}
	if o.registry == nil {
		o.registry = render.NewRegistry()
		renderer, err := html.New()
		if err != nil {
			o.initialiseErr = fmt.Errorf("orchestrator: default renderer: %w", err)
			return
		}
		o.registry.MustRegister(renderer)
		o.registry.MustRegister(jsonview.New())
	}
	if o.defaultRenderer == "" {
		o.defaultRenderer = defaultRendererName
	}
	o.controller = session.NewController(o.catalog,
		session.WithLogger(o.logger),
		session.WithPrefs(o.prefs),
		session.WithOverrides(o.overrides),
		session.WithSpecialty(o.specialty),
	)
}

// Catalog exposes the template catalog.
func (o *Orchestrator) Catalog() (*catalog.Catalog, error) {
	if o.initialiseErr != nil {
		return nil, o.initialiseErr
	}
	return o.catalog, nil
}

// Registry exposes the renderer registry.
func (o *Orchestrator) Registry() *render.Registry {
	return o.registry
}

// Open starts a session and keeps it addressable by its ID until Close.
func (o *Orchestrator) Open(ctx context.Context, section string, initial map[string]any) (*session.Session, error) {
	if ctx == nil {
		return nil, errors.New("orchestrator: context is required")
	}
	if o.initialiseErr != nil {
		return nil, o.initialiseErr
	}
	s, err := o.controller.Open(ctx, section, initial)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	stale := o.expireLocked()
	stale = append(stale, o.evictLocked()...)
	o.sessions[s.ID] = &entry{s: s, lastUsed: o.now()}
	o.mu.Unlock()

	o.cancel(stale)
	return s, nil
}

// Use runs fn with exclusive access to the open session id.
func (o *Orchestrator) Use(id string, fn func(*session.Session) error) error {
	o.mu.Lock()
	stale := o.expireLocked()
	e, ok := o.sessions[id]
	if ok {
		e.lastUsed = o.now()
	}
	o.mu.Unlock()

	o.cancel(stale)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.s)
}

// Close cancels and forgets the session id.
func (o *Orchestrator) Close(id string) {
	o.mu.Lock()
	e, ok := o.sessions[id]
	delete(o.sessions, id)
	o.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.s.Cancel()
	e.mu.Unlock()
}

// Sweep cancels every session idle for longer than the TTL and returns how
// many were removed.
func (o *Orchestrator) Sweep() int {
	o.mu.Lock()
	stale := o.expireLocked()
	o.mu.Unlock()

	o.cancel(stale)
	return len(stale)
}

// expireLocked removes idle entries. The caller holds o.mu and cancels the
// returned entries after releasing it.
func (o *Orchestrator) expireLocked() []*entry {
	if o.sessionTTL <= 0 {
		return nil
	}
	cutoff := o.now().Add(-o.sessionTTL)
	var stale []*entry
	for id, e := range o.sessions {
		if e.lastUsed.Before(cutoff) {
			delete(o.sessions, id)
			stale = append(stale, e)
		}
	}
	return stale
}

// evictLocked frees room for one more session under the cap by dropping the
// least recently used entries.
func (o *Orchestrator) evictLocked() []*entry {
	if o.maxSessions <= 0 {
		return nil
	}
	var evicted []*entry
	for len(o.sessions) >= o.maxSessions {
		var (
			oldestID string
			oldest   *entry
		)
		for id, e := range o.sessions {
			if oldest == nil || e.lastUsed.Before(oldest.lastUsed) {
				oldestID, oldest = id, e
			}
		}
		delete(o.sessions, oldestID)
		evicted = append(evicted, oldest)
	}
	return evicted
}

func (o *Orchestrator) cancel(entries []*entry) {
	for _, e := range entries {
		e.mu.Lock()
		o.logger.Debug().Str("session", e.s.ID).Msg("session expired")
		e.s.Cancel()
		e.mu.Unlock()
	}
}

// Len reports how many sessions are open.
func (o *Orchestrator) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

// Request describes a one-shot render of a section.
type Request struct {
	// Section is the section code to render.
	Section string

	// Values seeds the session, in any of the accepted external shapes.
	Values map[string]any

	// Renderer names the renderer to use. If empty, the orchestrator falls back
	// to the configured default renderer.
	Renderer string

	// RenderOptions carries form action, hidden fields and server errors.
	RenderOptions render.RenderOptions
}

// Generate opens a throwaway session for req.Section and renders it. The
// session is not kept.
func (o *Orchestrator) Generate(ctx context.Context, req Request) ([]byte, error) {
	if ctx == nil {
		return nil, errors.New("orchestrator: context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.initialiseErr != nil {
		return nil, o.initialiseErr
	}
	if req.Section == "" {
		return nil, errors.New("orchestrator: section is required")
	}

	s, err := o.controller.Open(ctx, req.Section, req.Values)
	if err != nil {
		return nil, err
	}
	defer s.Cancel()
	return o.Render(ctx, s, req.Renderer, req.RenderOptions)
}

// Render renders s with the named renderer.
func (o *Orchestrator) Render(ctx context.Context, s *session.Session, rendererName string, opts render.RenderOptions) ([]byte, error) {
	renderer, err := o.rendererFor(rendererName)
	if err != nil {
		return nil, err
	}
	view := render.NewView(s)
	if err := o.applyTransformers(ctx, &view); err != nil {
		return nil, err
	}
	output, err := renderer.Render(ctx, view, opts)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: render output: %w", err)
	}
	return output, nil
}

// ContentType reports the content type of the named renderer.
func (o *Orchestrator) ContentType(rendererName string) (string, error) {
	renderer, err := o.rendererFor(rendererName)
	if err != nil {
		return "", err
	}
	return renderer.ContentType(), nil
}

func (o *Orchestrator) rendererFor(name string) (render.Renderer, error) {
	if o.registry == nil {
		return nil, errors.New("orchestrator: renderer registry is nil")
	}

	target := name
	if target == "" {
		target = o.defaultRenderer
	}

	renderer, err := o.registry.Get(target)
	if err == nil {
		return renderer, nil
	}
	if name != "" {
		return nil, fmt.Errorf("orchestrator: renderer %q: %w", name, err)
	}

	names := o.registry.List()
	if len(names) == 0 {
		return nil, errors.New("orchestrator: no renderers registered")
	}
	return o.registry.Get(names[0])
}

func (o *Orchestrator) applyTransformers(ctx context.Context, view *render.View) error {
	for _, t := range o.transformers {
		if t == nil {
			continue
		}
		if err := t.Transform(ctx, view); err != nil {
			return fmt.Errorf("orchestrator: transform view: %w", err)
		}
	}
	return nil
}
