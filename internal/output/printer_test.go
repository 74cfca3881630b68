package output

import (
	"bytes"
	"errors"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourguide/internal/geometry"
	"tourguide/internal/prefs"
	"tourguide/internal/tour"
)

func TestPrinter_Catalogue(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinterWithWriter(&buf)

	defs := tour.DefaultDefinitions()[:1]
	require.NoError(t, p.Catalogue(defs, map[tour.Category]tour.Step{tour.Onboarding: tour.StepMenuPopover}))

	out := buf.String()
	assert.Contains(t, out, "tutorial_step")
	assert.Contains(t, out, "POST_POPOVER")
	assert.Contains(t, out, "(admin)")
	assert.Contains(t, out, "◀")
}

func TestPrinter_Status(t *testing.T) {
	tests := []struct {
		name   string
		report StatusReport
		want   []string
	}{
		{
			name:   "in progress",
			report: StatusReport{Category: tour.CRTTutorial, User: "u1", CurrentStep: 1, StepName: "LIST_POPOVER", AutoAdvance: true, LastStep: 2},
			want:   []string{"crt_tutorial_step", "u1", "1 (LIST_POPOVER)", "enabled"},
		},
		{
			name:   "finished",
			report: StatusReport{Category: tour.CRTTutorial, User: "u1", CurrentStep: tour.Finished, Finished: true, LastStep: 2},
			want:   []string{"finished", "disabled"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, NewPrinterWithWriter(&buf).Status(tt.report))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestPrinter_StatusJSON(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinterWithWriter(&buf)
	p.SetJSON(true)

	require.NoError(t, p.Status(StatusReport{Category: tour.Onboarding, User: "u1", CurrentStep: 3, AutoAdvance: true}))

	var got StatusReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, tour.Step(3), got.CurrentStep)
	assert.True(t, got.AutoAdvance)
}

func TestPrinter_Bounds(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinterWithWriter(&buf)

	require.NoError(t, p.Bounds([]string{"a"}, geometry.Rect{X: 1, Y: 2, Width: 3, Height: 4}, true))
	assert.Contains(t, buf.String(), "x=1 y=2 width=3 height=4")

	buf.Reset()
	require.NoError(t, p.Bounds([]string{"a"}, geometry.Rect{}, false))
	assert.Contains(t, buf.String(), "not every element")

	buf.Reset()
	p.SetJSON(true)
	require.NoError(t, p.Bounds([]string{"a"}, geometry.Rect{}, false))
	assert.Contains(t, buf.String(), `"punchout": null`)
}

func TestPrinter_Error(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinterWithWriter(&buf)
	p.Error(errors.New("boom"))
	assert.Contains(t, buf.String(), "boom")

	buf.Reset()
	p.SetJSON(true)
	p.Error(errors.New("boom"))
	assert.JSONEq(t, `{"error":"boom"}`, buf.String())
}

func TestPrinter_Preferences(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinterWithWriter(&buf)

	require.NoError(t, p.Preferences(nil))
	assert.Contains(t, buf.String(), "no preferences stored")

	buf.Reset()
	require.NoError(t, p.Preferences([]prefs.Preference{{Category: "crt_tutorial_step", Name: "u1", Value: "2"}}))
	assert.Contains(t, buf.String(), "u1 = 2")

	buf.Reset()
	p.SetJSON(true)
	require.NoError(t, p.Preferences(nil))
	assert.JSONEq(t, `[]`, buf.String())
}

func TestPrinter_Elements(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinterWithWriter(&buf)

	require.NoError(t, p.Elements([]string{"threads-list", "unread-filter"}))
	assert.Contains(t, buf.String(), "elements")
	assert.Contains(t, buf.String(), "  unread-filter")

	buf.Reset()
	p.SetJSON(true)
	require.NoError(t, p.Elements([]string{"a"}))
	assert.JSONEq(t, `{"ids":["a"]}`, buf.String())
}
