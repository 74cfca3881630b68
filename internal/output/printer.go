// Package output provides terminal output formatting for tourguide.
//
// [Printer] renders catalogue listings, tour status and punch-out
// rectangles with lipgloss styles, or as JSON when JSON mode is enabled.
// Use [NewPrinterWithWriter] in tests to capture output.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	json "github.com/goccy/go-json"

	"tourguide/internal/geometry"
	"tourguide/internal/prefs"
	"tourguide/internal/tour"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9E9E9E"))
	currentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2196F3"))
	adminStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e53935"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Printer writes formatted output.
type Printer struct {
	out  io.Writer
	json bool
}

// NewPrinter returns a Printer writing to stdout.
func NewPrinter() *Printer {
	return NewPrinterWithWriter(os.Stdout)
}

// NewPrinterWithWriter returns a Printer writing to w.
func NewPrinterWithWriter(w io.Writer) *Printer {
	return &Printer{out: w}
}

// SetJSON switches between styled text and JSON output.
func (p *Printer) SetJSON(enabled bool) {
	p.json = enabled
}

// StatusReport is the printable state of one category.
type StatusReport struct {
	Category    tour.Category `json:"category"`
	User        string        `json:"user"`
	CurrentStep tour.Step     `json:"current_step"`
	StepName    string        `json:"step_name,omitempty"`
	Finished    bool          `json:"finished"`
	AutoAdvance bool          `json:"auto_advance"`
	LastStep    tour.Step     `json:"last_step"`
	IsLastStep  bool          `json:"is_last_step"`
}

// Catalogue prints the steps of each definition, marking current when it
// belongs to the category being printed. Pass a nil current for none.
func (p *Printer) Catalogue(defs []tour.Definition, current map[tour.Category]tour.Step) error {
	if p.json {
		return p.encode(defs)
	}
	for i, def := range defs {
		if i > 0 {
			fmt.Fprintln(p.out)
		}
		fmt.Fprintln(p.out, headerStyle.Render(string(def.Category)))
		cur, hasCur := current[def.Category]
		for _, s := range def.Steps {
			line := fmt.Sprintf("  %4d  %s", s.Step, s.Name)
			if s.AdminOnly {
				line += " " + adminStyle.Render("(admin)")
			}
			if hasCur && cur == s.Step {
				line = currentStyle.Render(line + "  ◀")
			}
			fmt.Fprintln(p.out, line)
		}
	}
	return nil
}

// Status prints a status report.
func (p *Printer) Status(r StatusReport) error {
	if p.json {
		return p.encode(r)
	}

	step := r.CurrentStep.String()
	if r.StepName != "" {
		step += " (" + r.StepName + ")"
	}
	if r.Finished {
		step = "finished"
	}
	auto := "enabled"
	if !r.AutoAdvance {
		auto = "disabled"
	}

	rows := []string{
		headerStyle.Render(string(r.Category)),
		labelStyle.Render("user:      ") + r.User,
		labelStyle.Render("step:      ") + step,
		labelStyle.Render("auto tour: ") + auto,
		labelStyle.Render("last step: ") + r.LastStep.String(),
	}
	fmt.Fprintln(p.out, boxStyle.Render(strings.Join(rows, "\n")))
	return nil
}

// Bounds prints a punch-out rectangle, or a notice when the targets are
// not all present.
func (p *Printer) Bounds(ids []string, r geometry.Rect, ok bool) error {
	if p.json {
		payload := struct {
			IDs      []string       `json:"ids"`
			Punchout *geometry.Rect `json:"punchout"`
		}{IDs: ids}
		if ok {
			payload.Punchout = &r
		}
		return p.encode(payload)
	}
	if !ok {
		fmt.Fprintln(p.out, labelStyle.Render("no punch-out: not every element is present"))
		return nil
	}
	fmt.Fprintf(p.out, "%s x=%g y=%g width=%g height=%g\n",
		headerStyle.Render("punch-out"), r.X, r.Y, r.Width, r.Height)
	return nil
}

// Elements prints the element ids declared by a layout.
func (p *Printer) Elements(ids []string) error {
	if p.json {
		return p.encode(struct {
			IDs []string `json:"ids"`
		}{IDs: ids})
	}
	fmt.Fprintln(p.out, headerStyle.Render("elements"))
	for _, id := range ids {
		fmt.Fprintf(p.out, "  %s\n", id)
	}
	return nil
}

// Preferences prints stored preferences as category, name and value.
func (p *Printer) Preferences(list []prefs.Preference) error {
	if p.json {
		if list == nil {
			list = []prefs.Preference{}
		}
		return p.encode(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(p.out, labelStyle.Render("no preferences stored"))
		return nil
	}
	for _, pref := range list {
		fmt.Fprintf(p.out, "%s %s = %s\n", labelStyle.Render(pref.Category), pref.Name, pref.Value)
	}
	return nil
}

// Error prints an error line.
func (p *Printer) Error(err error) {
	if p.json {
		_ = p.encode(map[string]string{"error": err.Error()})
		return
	}
	fmt.Fprintln(p.out, errorStyle.Render("✗ "+err.Error()))
}

func (p *Printer) encode(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
