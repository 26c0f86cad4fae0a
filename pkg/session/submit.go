package session

import (
	"github.com/goliatone/go-consultform/internal/coerce"
	"github.com/goliatone/go-consultform/pkg/schema"
	"github.com/goliatone/go-consultform/pkg/units"
	"github.com/goliatone/go-consultform/pkg/validation"
)

// Payload is the nested save payload: item code to field key to value.
type Payload map[string]map[string]any

// Result is the outcome of Submit. Validation failures are reported here,
// never as an error.
type Result struct {
	OK      bool              `json:"ok"`
	Payload Payload           `json:"payload"`
	Errors  validation.Errors `json:"errors,omitempty"`
	Notices validation.Errors `json:"notices,omitempty"`
}

// Validate checks every field and returns all blocking errors and notices.
// Required checks apply to required-tier items and to any item with input.
func (s *Session) Validate() (validation.Errors, validation.Errors) {
	errs := validation.Errors{}
	notices := validation.Errors{}
	if s.closed {
		return errs, notices
	}
	for _, item := range s.section.Items {
		enforce := s.enforced(item.Code)
		for _, field := range item.Fields {
			outcome := s.check(item.Code, field, enforce)
			if outcome.Error != "" {
				errs.Add(ref(item.Code, field.Key), outcome.Error)
			}
			if outcome.Notice != "" {
				notices.Add(ref(item.Code, field.Key), outcome.Notice)
			}
		}
	}
	return errs, notices
}

// Submit validates the whole form and, when nothing blocks, produces the
// cleaned payload. The session state is left untouched on failure.
func (s *Session) Submit() (Result, error) {
	if s.closed {
		return Result{}, ErrSessionClosed
	}

	errs, notices := s.Validate()
	s.errors, s.notices = errs.Clone(), notices.Clone()
	if len(errs) > 0 {
		s.logger.Info().Int("errors", len(errs)).Strs("fields", errs.Keys()).Msg("submit rejected")
		return Result{OK: false, Errors: errs, Notices: notices}, nil
	}

	payload := s.payload()
	s.logger.Info().Int("items", len(payload)).Int("notices", len(notices)).Msg("submit accepted")
	return Result{OK: true, Payload: payload, Notices: notices}, nil
}

func (s *Session) payload() Payload {
	out := Payload{}
	for _, item := range s.store.Items() {
		fields := make(map[string]any)
		for key, value := range s.store.Item(item) {
			if !coerce.Empty(value) {
				fields[key] = value
			}
		}
		if len(fields) > 0 {
			out[item] = fields
		}
	}

	for _, item := range s.section.Items {
		for _, field := range item.Fields {
			if field.Kind != schema.KindCalculated {
				continue
			}
			result := s.evaluator.Evaluate(field.Formula, s.store, item.Code)
			if !result.Available {
				continue
			}
			if out[item.Code] == nil {
				out[item.Code] = make(map[string]any)
			}
			out[item.Code][field.Key] = units.RoundForDisplay(result.Value, field.Unit, field.Step)
		}
	}

	if s.section.Code == schema.SectionChiefComplaint {
		renameLegacyComplaint(out)
	}
	return out
}

// renameLegacyComplaint moves primary_complaint.complaint to complaint_text
// when only the legacy key is present.
func renameLegacyComplaint(p Payload) {
	primary, ok := p["primary_complaint"]
	if !ok {
		return
	}
	legacy, hasLegacy := primary["complaint"]
	if _, hasCurrent := primary["complaint_text"]; !hasLegacy || hasCurrent {
		return
	}
	primary["complaint_text"] = legacy
	delete(primary, "complaint")
}
