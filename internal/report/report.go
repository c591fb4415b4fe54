// Package report renders simulation results for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lox/cointie/internal/simulator"
)

// Format selects how a result is written
type Format string

const (
	FormatPlain  Format = "plain"
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
)

// Formats lists every supported format name.
var Formats = []Format{FormatPlain, FormatJSON, FormatPretty}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))

	estimateStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	expectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// ParseFormat returns the Format named by s.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == strings.ToLower(s) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// Write renders result to w in the requested format.
func Write(w io.Writer, format Format, result *simulator.Result) error {
	switch format {
	case FormatPlain, "":
		_, err := fmt.Fprintln(w, Ratio(result.Probability))
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		return enc.Encode(result)
	case FormatPretty:
		return writePretty(w, result)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// Ratio formats a probability the way a bare float print does: shortest
// representation, always with a decimal point.
func Ratio(p float64) string {
	s := strconv.FormatFloat(p, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func writePretty(out io.Writer, r *simulator.Result) error {
	if _, err := fmt.Fprintf(out, "%s\n\n", headerStyle.Render("coin tie simulation")); err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	row := func(label, value string) {
		fmt.Fprintf(w, "%s\t%s\n", labelStyle.Render(label), value)
	}

	row("trials", strconv.Itoa(r.Trials))
	row("flips/player", strconv.Itoa(r.FlipsPerPlayer))
	row("ties", strconv.Itoa(r.Equal))
	row("estimate", estimateStyle.Render(fmt.Sprintf("%.5f", r.Probability)))
	row("expected", expectedStyle.Render(fmt.Sprintf("%.5f", r.Expected)))
	row("95% CI", fmt.Sprintf("[%.5f, %.5f]", r.CILow, r.CIHigh))

	z := fmt.Sprintf("%+.2f", r.ZScore)
	if r.ZScore > 3 || r.ZScore < -3 {
		z = warnStyle.Render(z + " (outside 3σ)")
	}
	row("z-score", z)
	row("chi-squared", fmt.Sprintf("%.3f", r.ChiSquared))

	if err := w.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, "\n%s\n", mutedStyle.Render(fmt.Sprintf(
		"seed %d, %d workers, run %s in %v",
		r.Seed, r.Workers, r.ID, r.Elapsed.Truncate(time.Millisecond))))
	return err
}
