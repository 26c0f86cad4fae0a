// Package tui fills a form session from the terminal, prompting each field
// in tab order and submitting when every blocking error is resolved.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-consultform/internal/coerce"
	"github.com/goliatone/go-consultform/pkg/layout"
	"github.com/goliatone/go-consultform/pkg/render"
	"github.com/goliatone/go-consultform/pkg/schema"
	"github.com/goliatone/go-consultform/pkg/session"
	"github.com/goliatone/go-consultform/pkg/units"
)

const noneOption = "(none)"

// Filler drives a session through a PromptDriver.
type Filler struct {
	driver       PromptDriver
	outputFormat OutputFormat
	askUnits     bool
	offerHidden  bool
	theme        Theme
	logger       zerolog.Logger
}

// New constructs a Filler with defaults (survey driver, JSON output, unit
// and reveal prompts on).
func New(options ...Option) *Filler {
	f := &Filler{
		outputFormat: OutputFormatJSON,
		askUnits:     true,
		offerHidden:  true,
		theme:        Theme{NoticePrefix: "note: ", ErrorPrefix: "error: "},
		logger:       zerolog.Nop(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(f)
		}
	}
	if f.driver == nil {
		f.driver = NewSurveyDriver(nil)
	}
	return f
}

// ContentType reports the serialization format used by Run.
func (f *Filler) ContentType() string {
	switch f.outputFormat {
	case OutputFormatFormURLEncoded:
		return "application/x-www-form-urlencoded"
	case OutputFormatPrettyText:
		return "text/plain"
	default:
		return "application/json"
	}
}

// Run fills s and returns the serialized payload.
func (f *Filler) Run(ctx context.Context, s *session.Session) ([]byte, error) {
	res, err := f.Fill(ctx, s)
	if err != nil {
		return nil, err
	}
	return f.serialize(res.Payload)
}

// Fill prompts every field in tab order, then submits. Fields that still
// fail on submit are asked again. Aborting cancels the session.
func (f *Filler) Fill(ctx context.Context, s *session.Session) (session.Result, error) {
	if ctx == nil {
		return session.Result{}, errors.New("tui: context is required")
	}
	if s == nil || s.Closed() {
		return session.Result{}, session.ErrSessionClosed
	}

	res, err := f.fill(ctx, s)
	if err != nil {
		if errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled) {
			s.Cancel()
			f.logger.Info().Str("session", s.ID).Msg("fill aborted")
		}
		return session.Result{}, err
	}
	return res, nil
}

func (f *Filler) fill(ctx context.Context, s *session.Session) (session.Result, error) {
	if f.offerHidden {
		if err := f.promptReveal(ctx, s); err != nil {
			return session.Result{}, err
		}
	}

	for _, ref := range s.TabOrder() {
		if err := f.promptField(ctx, s, ref); err != nil {
			return session.Result{}, err
		}
	}

	for {
		if err := f.showCalculated(ctx, s); err != nil {
			return session.Result{}, err
		}
		res, err := s.Submit()
		if err != nil {
			return session.Result{}, err
		}
		for _, key := range res.Notices.Keys() {
			f.info(ctx, f.theme.NoticePrefix+key+": "+res.Notices[key])
		}
		if res.OK {
			return res, nil
		}

		f.logger.Debug().Strs("fields", res.Errors.Keys()).Msg("submit rejected, asking again")
		for _, key := range res.Errors.Keys() {
			f.info(ctx, f.theme.ErrorPrefix+key+": "+res.Errors[key])
			ref, err := layout.ParseFieldRef(key)
			if err != nil {
				return session.Result{}, err
			}
			if err := f.promptField(ctx, s, ref); err != nil {
				return session.Result{}, err
			}
		}
	}
}

func (f *Filler) promptReveal(ctx context.Context, s *session.Session) error {
	available := s.Layout().Available
	if len(available) == 0 {
		return nil
	}
	labels := make([]string, 0, len(available))
	for _, item := range available {
		labels = append(labels, itemLabel(item))
	}
	picked, err := f.driver.ChooseMany(ctx, ChoicePrompt{
		Message: "Add more items",
		Options: labels,
	})
	if err != nil {
		return err
	}
	for _, idx := range picked {
		if idx < 0 || idx >= len(available) {
			continue
		}
		if err := s.RevealHidden(ctx, available[idx].Code); err != nil {
			return err
		}
	}
	return nil
}

func (f *Filler) promptField(ctx context.Context, s *session.Session, ref layout.FieldRef) error {
	field, ok := s.Section().Field(ref.Item, ref.Key)
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrUnknownField, ref)
	}

	switch field.Kind {
	case schema.KindCalculated:
		return nil
	case schema.KindNumber:
		return f.promptNumber(ctx, s, ref, field)
	case schema.KindSingleSelect:
		return f.promptSelect(ctx, s, ref, field)
	case schema.KindMultiSelect:
		return f.promptMultiSelect(ctx, s, ref, field)
	default:
		return f.promptText(ctx, s, ref, field)
	}
}

func (f *Filler) promptNumber(ctx context.Context, s *session.Session, ref layout.FieldRef, field schema.Field) error {
	if f.askUnits && field.Converts() && len(field.SupportedUnits) > 1 {
		current := s.DisplayUnit(ref.Item, ref.Key)
		idx, err := f.driver.Choose(ctx, ChoicePrompt{
			Message:  fieldLabel(s, ref, field) + " unit",
			Options:  field.SupportedUnits,
			Selected: []int{unitIndex(field.SupportedUnits, current)},
		})
		if err != nil {
			return err
		}
		if idx >= 0 && idx < len(field.SupportedUnits) {
			if err := s.SetDisplayUnit(ref.Item, ref.Key, field.SupportedUnits[idx]); err != nil {
				return err
			}
		}
	}

	return f.ask(ctx, s, ref, func() (string, error) {
		return f.driver.Text(ctx, TextPrompt{
			Message: withUnit(fieldLabel(s, ref, field), s.DisplayUnit(ref.Item, ref.Key)),
			Default: displayDefault(s, ref),
			Help:    rangeHelp(s.Range(ref.Item, ref.Key)),
		})
	})
}

func (f *Filler) promptText(ctx context.Context, s *session.Session, ref layout.FieldRef, field schema.Field) error {
	return f.ask(ctx, s, ref, func() (string, error) {
		return f.driver.Text(ctx, TextPrompt{
			Message:   fieldLabel(s, ref, field),
			Default:   displayDefault(s, ref),
			Help:      field.Placeholder,
			Multiline: field.Multiline,
		})
	})
}

func (f *Filler) promptSelect(ctx context.Context, s *session.Session, ref layout.FieldRef, field schema.Field) error {
	options := optionLabels(field.Options)
	if !mandatory(s, ref, field) {
		options = append(options, noneOption)
	}
	current := displayDefault(s, ref)

	return f.ask(ctx, s, ref, func() (string, error) {
		idx, err := f.driver.Choose(ctx, ChoicePrompt{
			Message:  fieldLabel(s, ref, field),
			Options:  options,
			Selected: []int{optionIndex(field.Options, current)},
		})
		if err != nil {
			return "", err
		}
		if idx < 0 || idx >= len(field.Options) {
			return "", nil
		}
		return field.Options[idx].Value, nil
	})
}

func (f *Filler) promptMultiSelect(ctx context.Context, s *session.Session, ref layout.FieldRef, field schema.Field) error {
	for {
		var defaults []int
		if v, ok := s.Value(ref.Item, ref.Key); ok {
			for _, value := range coerce.Strings(v) {
				if idx := optionIndex(field.Options, value); idx >= 0 {
					defaults = append(defaults, idx)
				}
			}
		}

		picked, err := f.driver.ChooseMany(ctx, ChoicePrompt{
			Message:  fieldLabel(s, ref, field),
			Options:  optionLabels(field.Options),
			Selected: defaults,
		})
		if err != nil {
			return err
		}
		values := make([]string, 0, len(picked))
		for _, idx := range picked {
			if idx >= 0 && idx < len(field.Options) {
				values = append(values, field.Options[idx].Value)
			}
		}
		if err := s.SetField(ref.Item, ref.Key, values); err != nil {
			return err
		}
		if f.settled(ctx, s, ref) {
			return nil
		}
	}
}

// ask repeats prompt until the session accepts the answer without a
// blocking error.
func (f *Filler) ask(ctx context.Context, s *session.Session, ref layout.FieldRef, prompt func() (string, error)) error {
	for {
		answer, err := prompt()
		if err != nil {
			return err
		}
		if err := s.SetField(ref.Item, ref.Key, strings.TrimSpace(answer)); err != nil {
			return err
		}
		if f.settled(ctx, s, ref) {
			return nil
		}
	}
}

func (f *Filler) settled(ctx context.Context, s *session.Session, ref layout.FieldRef) bool {
	key := ref.String()
	if msg, ok := s.Errors()[key]; ok {
		f.info(ctx, fmt.Sprintf("%sInvalid %s: %s", f.theme.ErrorPrefix, key, msg))
		return false
	}
	if msg, ok := s.Notices()[key]; ok {
		f.info(ctx, f.theme.NoticePrefix+msg)
	}
	return true
}

func (f *Filler) showCalculated(ctx context.Context, s *session.Session) error {
	for _, group := range s.Layout().Groups() {
		for _, cell := range group.Cells {
			if cell.Field.Kind != schema.KindCalculated {
				continue
			}
			result, err := s.Calculated(cell.Ref.Item, cell.Ref.Key)
			if err != nil {
				return err
			}
			line := withUnit(fieldLabel(s, cell.Ref, cell.Field), cell.Field.Unit) + ": " + result.Display(units.StepDecimals(cell.Field.Step))
			if result.Classification != "" {
				line += " (" + result.Classification + ")"
			}
			f.info(ctx, f.theme.InfoPrefix+line)
		}
	}
	return nil
}

func (f *Filler) info(ctx context.Context, msg string) {
	if err := f.driver.Info(ctx, msg); err != nil {
		f.logger.Debug().Err(err).Msg("info message not shown")
	}
}

// mandatory reports whether the field must be answered before submit.
func mandatory(s *session.Session, ref layout.FieldRef, field schema.Field) bool {
	if !field.Required || s.Section().Relaxed() {
		return false
	}
	tier, _ := s.Tiers().Of(ref.Item)
	return tier == layout.TierRequired
}

func fieldLabel(s *session.Session, ref layout.FieldRef, field schema.Field) string {
	label := render.PlainLabel(field.Label)
	if label == "" {
		label = field.Key
	}
	item, ok := s.Section().Item(ref.Item)
	if !ok || len(item.Fields) < 2 {
		return label
	}
	if prefix := itemLabel(item); prefix != "" && !strings.EqualFold(prefix, label) {
		return prefix + " / " + label
	}
	return label
}

func itemLabel(item schema.Item) string {
	if label := render.PlainLabel(item.Label); label != "" {
		return label
	}
	return item.Code
}

func withUnit(label, unit string) string {
	if unit == "" {
		return label
	}
	return label + " (" + unit + ")"
}

func displayDefault(s *session.Session, ref layout.FieldRef) string {
	v, ok := s.DisplayValue(ref.Item, ref.Key)
	if !ok || v == nil {
		return ""
	}
	if n, isNumber := coerce.Number(v); isNumber {
		return units.FormatNumber(n)
	}
	return coerce.String(v)
}

func rangeHelp(r units.Range) string {
	switch {
	case r.Min != nil && r.Max != nil:
		return fmt.Sprintf("expected %s to %s", units.FormatMin(*r.Min), units.FormatMax(*r.Max))
	case r.Min != nil:
		return "at least " + units.FormatMin(*r.Min)
	case r.Max != nil:
		return "at most " + units.FormatMax(*r.Max)
	}
	return ""
}

func optionLabels(options []schema.Option) []string {
	out := make([]string, 0, len(options))
	for _, opt := range options {
		label := opt.Label
		if label == "" {
			label = opt.Value
		}
		out = append(out, label)
	}
	return out
}

func optionIndex(options []schema.Option, value string) int {
	for i, opt := range options {
		if opt.Value == value {
			return i
		}
	}
	return -1
}

func unitIndex(options []string, unit string) int {
	for i, candidate := range options {
		if units.Same(candidate, unit) {
			return i
		}
	}
	return 0
}
