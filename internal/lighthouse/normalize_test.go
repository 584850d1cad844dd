package lighthouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	report := lighthouseReport()

	tests := []struct {
		name string
		raw  map[string]any
		want Shape
	}{
		{"lighthouse_result key", map[string]any{"lighthouse_result": report}, ShapeDirect},
		{"canonical analysis_result", map[string]any{"analysis_result": map[string]any{"lighthouse_result": report}}, ShapeDirect},
		{"categories and audits", report, ShapeCategoriesAudits},
		{"items wrapping report", map[string]any{"items": []any{report}}, ShapeItemsWrapped},
		{"items wrapping direct", map[string]any{"items": []any{map[string]any{"lighthouse_result": report}}}, ShapeItemsWrapped},
		{"items wrapping junk", map[string]any{"items": []any{map[string]any{"foo": 1}}}, ShapeUnknown},
		{"empty items", map[string]any{"items": []any{}}, ShapeUnknown},
		{"categories only", map[string]any{"categories": map[string]any{}}, ShapeUnknown},
		{"null lighthouse_result", map[string]any{"lighthouse_result": nil}, ShapeUnknown},
		{"nil", nil, ShapeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.raw))
		})
	}
}

func TestNormalize_DirectUsedAsIs(t *testing.T) {
	raw := map[string]any{"lighthouse_result": lighthouseReport(), "url": "https://example.com"}
	got := Normalize(raw)
	assert.Equal(t, raw, got.AnalysisResult)
}

func TestNormalize_CategoriesAuditsWrapped(t *testing.T) {
	report := lighthouseReport()
	got := Normalize(report)
	assert.Equal(t, map[string]any{"lighthouse_result": report}, got.AnalysisResult)
}

func TestNormalize_ItemsUnwrapped(t *testing.T) {
	report := lighthouseReport()

	got := Normalize(map[string]any{"items": []any{report}})
	assert.Equal(t, map[string]any{"lighthouse_result": report}, got.AnalysisResult)

	direct := map[string]any{"lighthouse_result": report}
	got = Normalize(map[string]any{"items": []any{direct, map[string]any{"ignored": true}}})
	assert.Equal(t, direct, got.AnalysisResult)
}

func TestNormalize_DirectBeatsCategoriesAudits(t *testing.T) {
	raw := lighthouseReport()
	raw["lighthouse_result"] = map[string]any{"marker": true}
	got := Normalize(raw)
	assert.Equal(t, raw, got.AnalysisResult)
}

func TestNormalize_LighthouseResultBeatsAnalysisResult(t *testing.T) {
	raw := map[string]any{
		"lighthouse_result": map[string]any{"a": 1},
		"analysis_result":   map[string]any{"b": 2},
	}
	got := Normalize(raw)
	assert.Equal(t, raw, got.AnalysisResult)
	assert.Equal(t, map[string]any{"a": 1}, got.AnalysisResult["lighthouse_result"])
}

func TestNormalize_UnknownPassthrough(t *testing.T) {
	raw := map[string]any{"something": "else"}
	got := Normalize(raw)
	assert.Equal(t, map[string]any{"lighthouse_result": raw}, got.AnalysisResult)
}

func TestNormalize_NilNeverPanics(t *testing.T) {
	got := Normalize(nil)
	require.NotNil(t, got.AnalysisResult)
	assert.Equal(t, map[string]any{}, got.AnalysisResult["lighthouse_result"])
}

func TestNormalize_CanonicalUnchanged(t *testing.T) {
	for _, raw := range []map[string]any{
		lighthouseReport(),
		{"items": []any{lighthouseReport()}},
		{"unknown": 1},
	} {
		first := Normalize(raw)

		// Feeding the canonical result back in is a no-op.
		again := Normalize(first.AnalysisResult)
		assert.Equal(t, first.AnalysisResult, again.AnalysisResult)

		wrapped := Normalize(map[string]any{"analysis_result": first.AnalysisResult})
		assert.Equal(t, first.AnalysisResult, wrapped.AnalysisResult)
	}
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "direct", ShapeDirect.String())
	assert.Equal(t, "categories_audits", ShapeCategoriesAudits.String())
	assert.Equal(t, "items_wrapped", ShapeItemsWrapped.String())
	assert.Equal(t, "unknown", ShapeUnknown.String())
}
