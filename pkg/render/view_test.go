package render_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-consultform/pkg/catalog"
	"github.com/goliatone/go-consultform/pkg/render"
	"github.com/goliatone/go-consultform/pkg/schema"
	"github.com/goliatone/go-consultform/pkg/session"
	"github.com/goliatone/go-consultform/pkg/testsupport"
)

func openSession(t *testing.T, code string, initial map[string]any) *session.Session {
	t.Helper()

	tiers, err := catalog.LoadTierConfig(bytes.NewReader(testsupport.TiersYAML()))
	require.NoError(t, err)
	cat, err := catalog.New(
		catalog.WithLoader(&testsupport.StaticLoader{}),
		catalog.WithSource(schema.SourceFromFS(testsupport.TemplateFixture)),
		catalog.WithTiers(tiers),
	)
	require.NoError(t, err)

	s, err := session.NewController(cat).Open(context.Background(), code, initial)
	require.NoError(t, err)
	return s
}

func TestNewViewVitals(t *testing.T) {
	t.Parallel()

	s := openSession(t, "vitals", map[string]any{
		"anthropometry": map[string]any{"height": 175, "weight": 70},
	})
	view := render.NewView(s)

	require.Equal(t, "vitals", view.Section)
	require.Equal(t, s.ID, view.SessionID)
	require.True(t, view.Relaxed)
	require.Len(t, view.Tiers, 2)
	require.Equal(t, "required", view.Tiers[0].Name)
	require.Equal(t, "row", view.Tiers[0].Groups[0].Kind)
	require.Equal(t, "bp_pair", view.Tiers[0].Groups[1].Kind)

	height, ok := view.Cell("anthropometry.height")
	require.True(t, ok)
	require.Equal(t, "175", height.Value)
	require.Equal(t, "cm", height.Unit)
	require.Equal(t, []string{"cm", "ft"}, height.Units)
	require.Equal(t, "50", height.Min)
	require.Equal(t, "250", height.Max)
	require.Equal(t, 1, height.TabIndex)
	require.False(t, height.Required, "relaxed sections never mark fields required")

	bmi, ok := view.Cell("anthropometry.bmi")
	require.True(t, ok)
	require.True(t, bmi.ReadOnly)
	require.Equal(t, "22.9", bmi.Value)
	require.Equal(t, "Normal", bmi.Classification)
	require.Zero(t, bmi.TabIndex)

	spo2, ok := view.Cell("spo2.spo2")
	require.True(t, ok)
	require.Equal(t, "SpO<sub>2</sub>", spo2.Label)
	require.Equal(t, "SpO2", spo2.PlainLabel)

	codes := make([]string, 0, len(view.Available))
	for _, item := range view.Available {
		codes = append(codes, item.Code)
	}
	require.Equal(t, []string{"pain_score", "notes"}, codes)
	require.Equal(t, len(view.TabOrder), countTabbable(view))
}

func countTabbable(view render.View) int {
	n := 0
	for _, cell := range view.Cells() {
		if cell.TabIndex > 0 {
			n++
		}
	}
	return n
}

func TestNewViewStrictSectionMarksRequired(t *testing.T) {
	t.Parallel()

	s := openSession(t, "examination", nil)
	res, err := s.Submit()
	require.NoError(t, err)
	require.False(t, res.OK)

	view := render.NewView(s)
	systolic, ok := view.Cell("blood_pressure.systolic")
	require.True(t, ok)
	require.True(t, systolic.Required)
	require.Equal(t, "is required", systolic.Error)
	require.Equal(t, "mmHg", systolic.Unit)
	require.Empty(t, systolic.Units)

	findings, ok := view.Cell("general.findings")
	require.True(t, ok)
	require.False(t, findings.Required)
	require.True(t, findings.Multiline)
}

func TestNewViewMultiSelectValues(t *testing.T) {
	t.Parallel()

	s := openSession(t, "chief_complaint", map[string]any{
		"associated_symptoms": map[string]any{"symptoms": []any{"fever", "cough"}},
	})
	view := render.NewView(s)

	symptoms, ok := view.Cell("associated_symptoms.symptoms")
	require.True(t, ok)
	require.Equal(t, []string{"fever", "cough"}, symptoms.Values)
	require.Len(t, symptoms.Options, 4)
}
