package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/lox/cointie/internal/simulator"
)

// WriteHistory renders a list of recorded runs, newest first.
func WriteHistory(out io.Writer, format Format, runs []*simulator.Result) error {
	switch format {
	case FormatJSON:
		if runs == nil {
			runs = []*simulator.Result{}
		}
		return json.NewEncoder(out).Encode(runs)
	case FormatPretty, FormatPlain, "":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, mutedStyle.Render("no recorded runs"))
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		headerStyle.Render("id"),
		headerStyle.Render("started"),
		headerStyle.Render("trials"),
		headerStyle.Render("flips"),
		headerStyle.Render("estimate"),
		headerStyle.Render("expected"),
		headerStyle.Render("z"))

	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%+.2f\n",
			shortID(r.ID),
			r.StartedAt.UTC().Format(time.DateTime),
			r.Trials,
			r.FlipsPerPlayer,
			estimateStyle.Render(fmt.Sprintf("%.5f", r.Probability)),
			expectedStyle.Render(fmt.Sprintf("%.5f", r.Expected)),
			r.ZScore)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
