package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-consultform/pkg/schema"
)

var (
	// ErrSchemaUnavailable wraps every failure to produce a section: fetch
	// errors, contract/decode errors, and sections missing after the retry.
	ErrSchemaUnavailable = errors.New("catalog: schema unavailable")

	// ErrSectionNotFound is joined with ErrSchemaUnavailable when a section
	// code is absent even after re-fetching.
	ErrSectionNotFound = errors.New("catalog: section not found")
)

const flightKey = "template"

// Option customises a Catalog.
type Option func(*Catalog)

// WithLoader sets the loader used to fetch the template.
func WithLoader(loader schema.Loader) Option {
	return func(c *Catalog) {
		c.loader = loader
	}
}

// WithSource sets where the template is fetched from.
func WithSource(src schema.Source) Option {
	return func(c *Catalog) {
		c.source = src
	}
}

// WithTiers replaces the default tier lists.
func WithTiers(cfg TierConfig) Option {
	return func(c *Catalog) {
		c.tiers = cfg
	}
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// WithContractCheck toggles response contract validation (on by default).
func WithContractCheck(enabled bool) Option {
	return func(c *Catalog) {
		c.checkContract = enabled
	}
}

// Catalog fetches, caches and serves the consultation template. The cached
// template is replaced wholesale on invalidation and never mutated.
type Catalog struct {
	loader        schema.Loader
	source        schema.Source
	tiers         TierConfig
	logger        zerolog.Logger
	checkContract bool

	mu     sync.RWMutex
	cached *schema.Template
	flight singleflight.Group
}

// New constructs a Catalog. A loader and a source are required.
func New(options ...Option) (*Catalog, error) {
	c := &Catalog{
		tiers:         DefaultTierConfig(),
		logger:        zerolog.Nop(),
		checkContract: true,
	}
	for _, opt := range options {
		if opt != nil {
			opt(c)
		}
	}
	if c.loader == nil {
		return nil, errors.New("catalog: loader is required")
	}
	if c.source == nil {
		return nil, errors.New("catalog: source is required")
	}
	return c, nil
}

// Fetch returns the cached template, fetching it on first use. Concurrent
// callers share one in-flight fetch. Failures are reported once and are
// not cached or retried here.
func (c *Catalog) Fetch(ctx context.Context) (*schema.Template, error) {
	if tpl, ok := c.Cached(); ok {
		return tpl, nil
	}

	ch := c.flight.DoChan(flightKey, func() (any, error) {
		if tpl, ok := c.Cached(); ok {
			return tpl, nil
		}
		return c.load(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrSchemaUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*schema.Template), nil
	}
}

func (c *Catalog) load(ctx context.Context) (*schema.Template, error) {
	doc, err := c.loader.Load(ctx, c.source)
	if err != nil {
		c.logger.Error().Err(err).Str("source", c.source.Location()).Msg("template fetch failed")
		return nil, fmt.Errorf("%w: %w", ErrSchemaUnavailable, err)
	}

	if c.checkContract {
		if err := schema.CheckResponse(ctx, doc.Raw()); err != nil {
			c.logger.Error().Err(err).Str("source", doc.Location()).Msg("template response rejected")
			return nil, fmt.Errorf("%w: %w", ErrSchemaUnavailable, err)
		}
	}

	tpl, err := schema.Decode(doc)
	if err != nil {
		c.logger.Error().Err(err).Str("source", doc.Location()).Msg("template decode failed")
		return nil, fmt.Errorf("%w: %w", ErrSchemaUnavailable, err)
	}

	c.mu.Lock()
	c.cached = tpl
	c.mu.Unlock()

	c.logger.Info().
		Str("source", doc.Location()).
		Str("checksum", doc.Checksum()).
		Strs("sections", tpl.SectionCodes()).
		Msg("template loaded")
	return tpl, nil
}

// Cached returns the cached template without fetching.
func (c *Catalog) Cached() (*schema.Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cached, c.cached != nil
}

// Invalidate drops the cached template so the next Fetch reloads it.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// RetryBudget allows exactly one re-fetch when a section is missing from the
// cached template. One budget belongs to one form session.
type RetryBudget struct {
	spent atomic.Bool
}

// NewRetryBudget returns an unspent budget.
func NewRetryBudget() *RetryBudget {
	return &RetryBudget{}
}

// Spent reports whether the retry has been used.
func (b *RetryBudget) Spent() bool {
	return b != nil && b.spent.Load()
}

func (b *RetryBudget) take() bool {
	return b.spent.CompareAndSwap(false, true)
}

// FindSection returns the section registered under code. When the cached
// template lacks it, the cache is invalidated and refetched once per budget
// before reporting ErrSectionNotFound. A nil budget allows one retry.
func (c *Catalog) FindSection(ctx context.Context, code string, budget *RetryBudget) (schema.Section, error) {
	if budget == nil {
		budget = NewRetryBudget()
	}

	tpl, err := c.Fetch(ctx)
	if err != nil {
		return schema.Section{}, err
	}
	if section, ok := tpl.Section(code); ok {
		return section, nil
	}

	if budget.take() {
		c.logger.Warn().Str("section", code).Msg("section missing from cached template, refetching")
		c.Invalidate()
		tpl, err = c.Fetch(ctx)
		if err != nil {
			return schema.Section{}, err
		}
		if section, ok := tpl.Section(code); ok {
			return section, nil
		}
	}

	return schema.Section{}, fmt.Errorf("%w: %w: %q", ErrSchemaUnavailable, ErrSectionNotFound, code)
}

// Tiers returns the tier configuration.
func (c *Catalog) Tiers() TierConfig {
	return c.tiers
}

// DefaultRequired returns the default-required item codes of a section.
func (c *Catalog) DefaultRequired(section string) map[string]struct{} {
	return c.tiers.Required(section)
}

// DefaultOptional returns the default-optional item codes of a section.
func (c *Catalog) DefaultOptional(section string) map[string]struct{} {
	return c.tiers.Optional(section)
}
