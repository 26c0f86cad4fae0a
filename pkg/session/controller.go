// Package session runs one open consultation form: it owns the value store,
// display units and validation state, and turns them into a save payload.
package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-consultform/pkg/catalog"
	"github.com/goliatone/go-consultform/pkg/formula"
	"github.com/goliatone/go-consultform/pkg/prefs"
	"github.com/goliatone/go-consultform/pkg/schema"
	"github.com/goliatone/go-consultform/pkg/units"
	"github.com/goliatone/go-consultform/pkg/values"
)

var (
	// ErrSessionClosed is returned by every operation after Cancel.
	ErrSessionClosed = errors.New("session: closed")
	// ErrUnknownField is returned for item/field pairs the section does not
	// declare.
	ErrUnknownField = errors.New("session: unknown field")
	// ErrReadOnly is returned when writing a calculated field.
	ErrReadOnly = errors.New("session: field is read-only")
	// ErrUnsupportedUnit is returned when selecting a unit a field cannot be
	// displayed in.
	ErrUnsupportedUnit = errors.New("session: unsupported unit")
)

// Catalog is the template source a Controller opens sections from.
type Catalog interface {
	FindSection(ctx context.Context, code string, budget *catalog.RetryBudget) (schema.Section, error)
	DefaultRequired(section string) map[string]struct{}
	DefaultOptional(section string) map[string]struct{}
}

// Option customises a Controller.
type Option func(*Controller)

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithPrefs sets the store used to remember revealed hidden items.
func WithPrefs(store prefs.Store) Option {
	return func(c *Controller) {
		c.prefs = store
	}
}

// WithOverrides sets the specialty range overrides.
func WithOverrides(overrides units.Overrides) Option {
	return func(c *Controller) {
		c.overrides = overrides
	}
}

// WithSpecialty selects which override table applies.
func WithSpecialty(specialty string) Option {
	return func(c *Controller) {
		c.specialty = specialty
	}
}

// WithEvaluator replaces the formula evaluator.
func WithEvaluator(evaluator *formula.Evaluator) Option {
	return func(c *Controller) {
		c.evaluator = evaluator
	}
}

// Controller opens form sessions against a shared catalog.
type Controller struct {
	catalog   Catalog
	prefs     prefs.Store
	overrides units.Overrides
	specialty string
	logger    zerolog.Logger
	evaluator *formula.Evaluator
}

// NewController constructs a Controller.
func NewController(cat Catalog, options ...Option) *Controller {
	c := &Controller{
		catalog: cat,
		prefs:   prefs.NewMemory(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(c)
		}
	}
	if c.evaluator == nil {
		c.evaluator = formula.New(formula.WithLogger(c.logger))
	}
	return c
}

// Open starts a session for sectionCode seeded from initial, whose shape
// may vary by section. Schema failures are returned once, wrapped in
// catalog.ErrSchemaUnavailable.
func (c *Controller) Open(ctx context.Context, sectionCode string, initial map[string]any) (*Session, error) {
	section, err := c.catalog.FindSection(ctx, sectionCode, catalog.NewRetryBudget())
	if err != nil {
		c.logger.Warn().Err(err).Str("section", sectionCode).Msg("section unavailable")
		return nil, err
	}

	revealed, err := c.prefs.Get(ctx, prefs.RevealedKey(section.Code))
	if err != nil {
		c.logger.Warn().Err(err).Str("section", section.Code).Msg("revealed items unavailable")
		revealed = nil
	}

	s := &Session{
		ID:           uuid.NewString(),
		section:      section,
		required:     c.catalog.DefaultRequired(section.Code),
		optional:     c.catalog.DefaultOptional(section.Code),
		store:        values.NormalizeFrom(initial, section),
		displayUnits: make(map[string]string),
		touched:      make(map[string]bool),
		overrides:    c.overrides.For(c.specialty),
		evaluator:    c.evaluator,
		prefs:        c.prefs,
		logger:       c.logger.With().Str("section", section.Code).Logger(),
	}
	for _, code := range revealed {
		if s.isHidden(code) {
			s.revealed = append(s.revealed, code)
		}
	}
	s.logger = s.logger.With().Str("session", s.ID).Logger()
	s.logger.Debug().Int("values", s.store.Len()).Strs("revealed", s.revealed).Msg("session opened")
	return s, nil
}
