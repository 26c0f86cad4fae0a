package session_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-consultform/pkg/catalog"
	"github.com/goliatone/go-consultform/pkg/layout"
	"github.com/goliatone/go-consultform/pkg/prefs"
	"github.com/goliatone/go-consultform/pkg/schema"
	"github.com/goliatone/go-consultform/pkg/session"
	"github.com/goliatone/go-consultform/pkg/testsupport"
	"github.com/goliatone/go-consultform/pkg/units"
)

func newController(t *testing.T, loader *testsupport.StaticLoader, opts ...session.Option) *session.Controller {
	t.Helper()

	tiers, err := catalog.LoadTierConfig(bytes.NewReader(testsupport.TiersYAML()))
	require.NoError(t, err)

	cat, err := catalog.New(
		catalog.WithLoader(loader),
		catalog.WithSource(schema.SourceFromFS(testsupport.TemplateFixture)),
		catalog.WithTiers(tiers),
	)
	require.NoError(t, err)
	return session.NewController(cat, opts...)
}

func open(t *testing.T, code string, initial map[string]any, opts ...session.Option) *session.Session {
	t.Helper()

	s, err := newController(t, &testsupport.StaticLoader{}, opts...).Open(context.Background(), code, initial)
	require.NoError(t, err)
	return s
}

func TestCanonicalStorage(t *testing.T) {
	t.Parallel()

	s := open(t, "vitals", nil)
	require.Equal(t, "cm", s.DisplayUnit("anthropometry", "height"))

	require.NoError(t, s.SetDisplayUnit("anthropometry", "height", "ft"))
	require.NoError(t, s.SetField("anthropometry", "height", "5.9"))

	stored, ok := s.Value("anthropometry", "height")
	require.True(t, ok)
	require.InDelta(t, 179.832, stored.(float64), 1e-9)

	shown, _ := s.DisplayValue("anthropometry", "height")
	require.Equal(t, 5.9, shown)

	require.NoError(t, s.SetDisplayUnit("anthropometry", "height", "cm"))
	shown, _ = s.DisplayValue("anthropometry", "height")
	require.Equal(t, 179.8, shown)

	// Switching units never touches the stored value.
	stored, _ = s.Value("anthropometry", "height")
	require.InDelta(t, 179.832, stored.(float64), 1e-9)
}

func TestTemperatureInFahrenheit(t *testing.T) {
	t.Parallel()

	s := open(t, "vitals", nil)
	require.NoError(t, s.SetDisplayUnit("temperature", "temperature", "°F"))
	require.NoError(t, s.SetField("temperature", "temperature", 98.6))

	stored, _ := s.Value("temperature", "temperature")
	require.InDelta(t, 37.0, stored.(float64), 1e-9)

	shown, _ := s.DisplayValue("temperature", "temperature")
	require.Equal(t, 99.0, shown)

	rng := s.Range("temperature", "temperature")
	require.InDelta(t, 95.0, *rng.Min, 1e-9)
	require.InDelta(t, 107.6, *rng.Max, 1e-9)
}

func TestSetFieldErrors(t *testing.T) {
	t.Parallel()

	s := open(t, "vitals", nil)

	require.ErrorIs(t, s.SetField("anthropometry", "waist", 80), session.ErrUnknownField)
	require.ErrorIs(t, s.SetField("anthropometry", "bmi", 22), session.ErrReadOnly)
	require.ErrorIs(t, s.SetDisplayUnit("anthropometry", "height", "lb"), session.ErrUnsupportedUnit)
	require.ErrorIs(t, s.SetDisplayUnit("pulse", "pulse", "ft"), session.ErrUnsupportedUnit)
}

func TestEmptySubmit(t *testing.T) {
	t.Parallel()

	strict := open(t, "chief_complaint", nil)
	res, err := strict.Submit()
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, "is required", res.Errors["primary_complaint.complaint_text"])
	require.NotContains(t, res.Errors, "severity.severity", "optional items are not enforced until used")

	relaxed := open(t, "vitals", nil)
	res, err = relaxed.Submit()
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Empty(t, res.Payload)
	require.NotNil(t, res.Payload)
}

func TestOptionalItemEnforcedOnceUsed(t *testing.T) {
	t.Parallel()

	s := open(t, "allergies", map[string]any{
		"drug_allergy": map[string]any{"allergen": "Penicillin"},
	})
	require.NoError(t, s.SetField("food_allergy", "foods", []string{}))

	res, err := s.Submit()
	require.NoError(t, err)
	require.True(t, res.OK, "an explicit clear does not engage the item: %v", res.Errors)

	require.NoError(t, s.SetField("drug_allergy", "reaction_severity", "deadly"))
	res, err = s.Submit()
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, `"deadly" is not a valid option`, res.Errors["drug_allergy.reaction_severity"])
}

func TestFirstEntryInOptionalItemChecksSiblings(t *testing.T) {
	t.Parallel()

	tiers, err := catalog.LoadTierConfig(strings.NewReader("sections:\n  allergies:\n    required: [food_allergy]\n    optional: [drug_allergy]\n"))
	require.NoError(t, err)
	cat, err := catalog.New(
		catalog.WithLoader(&testsupport.StaticLoader{}),
		catalog.WithSource(schema.SourceFromFS(testsupport.TemplateFixture)),
		catalog.WithTiers(tiers),
	)
	require.NoError(t, err)
	s, err := session.NewController(cat).Open(context.Background(), "allergies", nil)
	require.NoError(t, err)

	require.NotContains(t, s.Errors(), "drug_allergy.allergen")

	require.NoError(t, s.SetField("drug_allergy", "reaction", "Hives"))
	require.Equal(t, "is required", s.Errors()["drug_allergy.allergen"])

	require.NoError(t, s.SetField("drug_allergy", "reaction", ""))
	require.NotContains(t, s.Errors(), "drug_allergy.allergen", "clearing the item drops its required errors")

	require.NoError(t, s.SetField("drug_allergy", "reaction", "Hives"))
	require.NoError(t, s.SetField("drug_allergy", "allergen", "Penicillin"))
	require.Empty(t, s.Errors())
}

func TestPayloadPruning(t *testing.T) {
	t.Parallel()

	s := open(t, "vitals", map[string]any{
		"anthropometry":  map[string]any{"height": "", "weight": nil},
		"blood_pressure": map[string]any{"systolic": 120.0, "diastolic": ""},
	})

	res, err := s.Submit()
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Equal(t, session.Payload{
		"blood_pressure": {"systolic": 120.0},
	}, res.Payload)
}

func TestBloodPressureScenario(t *testing.T) {
	t.Parallel()

	s := open(t, "examination", nil)
	require.NoError(t, s.SetField("blood_pressure", "systolic", 190))
	require.NoError(t, s.SetField("blood_pressure", "diastolic", 70))

	res, err := s.Submit()
	require.NoError(t, err)
	require.True(t, res.OK, "unexpected errors: %v", res.Errors)
	require.Equal(t, session.Payload{
		"blood_pressure": {"systolic": 190.0, "diastolic": 70.0},
	}, res.Payload)

	require.NoError(t, s.SetField("blood_pressure", "systolic", 250))
	require.Contains(t, s.Errors()["blood_pressure.systolic"], "200", "live validation on write")

	res, err = s.Submit()
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Contains(t, res.Errors, "blood_pressure.systolic")
	require.Contains(t, res.Errors["blood_pressure.systolic"], "200")
	require.Nil(t, res.Payload)
}

func TestSubmitCollectsAllErrors(t *testing.T) {
	t.Parallel()

	s := open(t, "allergies", nil)
	require.NoError(t, s.SetField("drug_allergy", "allergen", "peni1"))
	require.NoError(t, s.SetField("food_allergy", "foods", []string{"gluten"}))

	res, err := s.Submit()
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, "Use letters only", res.Errors["drug_allergy.allergen"])
	require.Equal(t, `"gluten" is not a valid option`, res.Errors["food_allergy.foods"])
}

func TestRelaxedVitalsNotice(t *testing.T) {
	t.Parallel()

	s := open(t, "vitals", nil)
	require.NoError(t, s.SetField("pulse", "pulse", 300))
	require.Empty(t, s.Errors())
	require.Equal(t, "Unusual value (expected 30–220 bpm)", s.Notices()["pulse.pulse"])

	res, err := s.Submit()
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Equal(t, 300.0, res.Payload["pulse"]["pulse"])
	require.Contains(t, res.Notices, "pulse.pulse")
}

func TestSpecialtyOverride(t *testing.T) {
	t.Parallel()

	overrides, err := units.LoadOverrides(strings.NewReader(`
specialties:
  pediatrics:
    pulse: {unit: bpm, min: 70, max: 190}
`))
	require.NoError(t, err)

	s := open(t, "vitals", nil, session.WithOverrides(overrides), session.WithSpecialty("Pediatrics"))
	require.NoError(t, s.SetField("pulse", "pulse", 60))
	require.Equal(t, "Unusual value (expected 70–190 bpm)", s.Notices()["pulse.pulse"])
}

func TestCalculatedBodyMassIndex(t *testing.T) {
	t.Parallel()

	s := open(t, "vitals", map[string]any{"height": 175, "weight": 70})

	res, err := s.Calculated("anthropometry", "bmi")
	require.NoError(t, err)
	require.True(t, res.Available)
	require.Equal(t, "Normal", res.Classification)

	submit, err := s.Submit()
	require.NoError(t, err)
	require.Equal(t, 22.9, submit.Payload["anthropometry"]["bmi"])

	require.NoError(t, s.SetField("anthropometry", "height", 500))
	res, err = s.Calculated("anthropometry", "bmi")
	require.NoError(t, err)
	require.False(t, res.Available)

	submit, err = s.Submit()
	require.NoError(t, err)
	require.NotContains(t, submit.Payload["anthropometry"], "bmi")
}

func TestLegacyComplaintRename(t *testing.T) {
	t.Parallel()

	legacy := []byte(`{"template":{"sections":[{"section":"chief_complaint","items":[
	  {"code":"primary_complaint","label":"Complaint","fields":[{"key":"complaint","label":"Complaint","type":"text","required":true}]}
	]}]}}`)
	ctrl := newController(t, &testsupport.StaticLoader{Payload: legacy})

	s, err := ctrl.Open(context.Background(), "chief_complaint", map[string]any{"complaint": "Headache for two days"})
	require.NoError(t, err)

	res, err := s.Submit()
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Equal(t, session.Payload{
		"primary_complaint": {"complaint_text": "Headache for two days"},
	}, res.Payload)
}

func TestOpenMissingSection(t *testing.T) {
	t.Parallel()

	loader := &testsupport.StaticLoader{}
	ctrl := newController(t, loader)

	_, err := ctrl.Open(context.Background(), "obstetrics", nil)
	require.ErrorIs(t, err, catalog.ErrSchemaUnavailable)
	require.ErrorIs(t, err, catalog.ErrSectionNotFound)
	require.Equal(t, 2, loader.Calls(), "one fetch plus one self-healing refetch")

	_, err = ctrl.Open(context.Background(), "obstetrics", nil)
	require.ErrorIs(t, err, catalog.ErrSectionNotFound)
	require.Equal(t, 3, loader.Calls(), "each open gets its own retry")
}

func TestOpenFetchFailure(t *testing.T) {
	t.Parallel()

	loader := &testsupport.StaticLoader{Err: errors.New("503")}
	_, err := newController(t, loader).Open(context.Background(), "vitals", nil)
	require.ErrorIs(t, err, catalog.ErrSchemaUnavailable)
	require.Equal(t, 1, loader.Calls())
}

func TestCancel(t *testing.T) {
	t.Parallel()

	s := open(t, "vitals", map[string]any{"pulse": 72})
	s.Cancel()

	require.True(t, s.Closed())
	require.ErrorIs(t, s.SetField("pulse", "pulse", 80), session.ErrSessionClosed)
	_, err := s.Submit()
	require.ErrorIs(t, err, session.ErrSessionClosed)
	_, ok := s.Value("pulse", "pulse")
	require.False(t, ok)
	require.ErrorIs(t, s.RevealHidden(context.Background(), "pain_score"), session.ErrSessionClosed)
}

func TestRevealHiddenPersists(t *testing.T) {
	t.Parallel()

	store := prefs.NewMemory()
	ctrl := newController(t, &testsupport.StaticLoader{}, session.WithPrefs(store))
	ctx := context.Background()

	first, err := ctrl.Open(ctx, "vitals", nil)
	require.NoError(t, err)
	require.NoError(t, first.RevealHidden(ctx, "pain_score"))
	require.NoError(t, first.RevealHidden(ctx, "pulse"), "revealing a visible item is a no-op")
	require.ErrorIs(t, first.RevealHidden(ctx, "missing"), session.ErrUnknownField)
	require.Equal(t, []string{"pain_score"}, first.Revealed())

	saved, err := store.Get(ctx, prefs.RevealedVitalsKey)
	require.NoError(t, err)
	require.Equal(t, []string{"pain_score"}, saved)

	second, err := ctrl.Open(ctx, "vitals", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"pain_score"}, second.Revealed())

	order := second.TabOrder()
	require.Equal(t, layout.FieldRef{Item: "pain_score", Key: "pain_score"}, order[len(order)-1])

	require.NoError(t, second.HideItem(ctx, "pain_score"))
	require.Empty(t, second.Revealed())
	saved, _ = store.Get(ctx, prefs.RevealedVitalsKey)
	require.Empty(t, saved)
}

func TestNext(t *testing.T) {
	t.Parallel()

	s := open(t, "vitals", nil)

	next, ok := s.Next(layout.FieldRef{Item: "anthropometry", Key: "weight"})
	require.True(t, ok)
	require.Equal(t, layout.FieldRef{Item: "blood_pressure", Key: "systolic"}, next, "bmi is read-only and skipped")

	_, ok = s.Next(layout.FieldRef{Item: "blood_sugar", Key: "sugar_notes"})
	require.False(t, ok)
}

func TestSessionIDsAreUnique(t *testing.T) {
	t.Parallel()

	ctrl := newController(t, &testsupport.StaticLoader{})
	a, err := ctrl.Open(context.Background(), "vitals", nil)
	require.NoError(t, err)
	b, err := ctrl.Open(context.Background(), "vitals", nil)
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)
}
