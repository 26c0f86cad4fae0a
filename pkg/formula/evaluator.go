package formula

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-consultform/internal/coerce"
	"github.com/goliatone/go-consultform/pkg/units"
)

// Placeholder is shown in place of a calculated value that cannot be
// computed yet.
const Placeholder = "—"

// Reason explains why a result is unavailable.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonEmpty       Reason = "empty_formula"
	ReasonMissing     Reason = "missing_dependency"
	ReasonMalformed   Reason = "malformed_formula"
	ReasonMath        Reason = "non_finite_result"
	ReasonImplausible Reason = "implausible_inputs"
)

// Result is the outcome of evaluating a formula. Unavailable results carry
// no value and are never errors.
type Result struct {
	Value     float64
	Available bool
	Reason    Reason
	Missing   []string
	// Classification is the BMI band for body-mass-index formulas.
	Classification string
}

// Display formats the value with the given number of decimals, or returns
// the placeholder when unavailable.
func (r Result) Display(decimals int) string {
	if !r.Available {
		return Placeholder
	}
	if decimals < 0 {
		decimals = 0
	}
	return strconv.FormatFloat(r.Value, 'f', decimals, 64)
}

func unavailable(reason Reason) Result {
	return Result{Reason: reason}
}

// Resolver looks up a referenced field value. Implementations check the
// current item first and then scan the remaining items, first match wins.
type Resolver interface {
	Lookup(key, item string) (any, bool)
}

// ResolverFunc adapts a function into a Resolver.
type ResolverFunc func(key, item string) (any, bool)

// Lookup delegates to the underlying function.
func (fn ResolverFunc) Lookup(key, item string) (any, bool) {
	return fn(key, item)
}

var identifierPattern = regexp.MustCompile(`\b[a-zA-Z_][a-zA-Z0-9_]*\b`)

// skipped names are math helpers, never field references.
var skipped = map[string]struct{}{
	"Math":  {},
	"sqrt":  {},
	"pow":   {},
	"abs":   {},
	"min":   {},
	"max":   {},
	"round": {},
	"floor": {},
	"ceil":  {},
	"log":   {},
	"exp":   {},
	"PI":    {},
	"E":     {},
}

// References returns the field keys a formula depends on, in first-seen
// order, excluding math helper names.
func References(formula string) []string {
	matches := identifierPattern.FindAllString(formula, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, name := range matches {
		if _, skip := skipped[name]; skip {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger attaches a logger used to report rejected formulas.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// Evaluator computes calculated fields from stored values.
type Evaluator struct {
	logger zerolog.Logger
}

// New constructs an Evaluator.
func New(options ...Option) *Evaluator {
	e := &Evaluator{logger: zerolog.Nop()}
	for _, opt := range options {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Evaluate substitutes every referenced field and computes the expression.
// Any missing or non-numeric dependency makes the whole result unavailable.
func (e *Evaluator) Evaluate(formula string, resolver Resolver, item string) Result {
	expression := strings.TrimSpace(formula)
	if expression == "" {
		return unavailable(ReasonEmpty)
	}

	refs := References(expression)
	resolved := make(map[string]float64, len(refs))
	var missing []string
	for _, ref := range refs {
		var (
			raw any
			ok  bool
		)
		if resolver != nil {
			raw, ok = resolver.Lookup(ref, item)
		}
		value, numeric := coerce.Number(raw)
		if !ok || !numeric {
			missing = append(missing, ref)
			continue
		}
		resolved[ref] = normalizeReference(ref, value)
	}
	if len(missing) > 0 {
		return Result{Reason: ReasonMissing, Missing: missing}
	}

	substituted := identifierPattern.ReplaceAllStringFunc(expression, func(name string) string {
		value, ok := resolved[name]
		if !ok {
			return name
		}
		formatted := strconv.FormatFloat(value, 'f', -1, 64)
		if value < 0 {
			return "(" + formatted + ")"
		}
		return formatted
	})

	value, err := Compute(substituted)
	if err != nil {
		if errors.Is(err, errMalformed) {
			e.logger.Warn().
				Str("formula", expression).
				Str("expression", substituted).
				Err(err).
				Msg("formula rejected")
		}
		return unavailable(ReasonMalformed)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return unavailable(ReasonMath)
	}

	if !IsBodyMassIndex(refs) {
		return Result{Value: value, Available: true}
	}
	if !plausibleBodyMeasures(refs, resolved) {
		return unavailable(ReasonImplausible)
	}
	return Result{Value: value, Available: true, Classification: ClassifyBMI(value)}
}

// normalizeReference applies the height-in-feet heuristic: a height below
// 10 can only be feet and is converted to centimeters. It is specific to
// body-mass-index style formulas and is not general unit inference.
func normalizeReference(name string, value float64) float64 {
	if isHeight(name) && value > 0 && value < 10 {
		converted, err := units.Convert(value, units.Foot, units.Centimeter)
		if err == nil {
			return converted
		}
	}
	return value
}

func isHeight(name string) bool {
	return strings.Contains(strings.ToLower(name), "height")
}

func isWeight(name string) bool {
	return strings.Contains(strings.ToLower(name), "weight")
}
