package scenario

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
)

// Report summarizes a run.
type Report struct {
	Results  []Result      `json:"results"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Errored  int           `json:"errored"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether every scenario passed.
func (r *Report) OK() bool {
	return r.Failed == 0 && r.Errored == 0
}

func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText renders one line per scenario followed by the diagnostics of every
// scenario that did not pass.
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERDICT\tSCENARIO\tDURATION")
	for _, res := range r.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", strings.ToUpper(string(res.Verdict)), res.Name, res.Duration.Round(time.Millisecond))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, res := range r.Results {
		if res.Verdict == Passed {
			continue
		}
		fmt.Fprintf(w, "\n--- %s: %s\n", strings.ToUpper(string(res.Verdict)), res.Name)
		if res.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", res.Error)
		}
		for _, failure := range res.Failures {
			fmt.Fprintf(w, "    %s\n", indent(failure, "    "))
		}
		for _, ex := range res.Exchanges {
			fmt.Fprintf(w, "    > %s %s %s\n", ex.Method, ex.URL, ex.RequestBody)
			if ex.Error != "" {
				fmt.Fprintf(w, "    < error: %s\n", ex.Error)
				continue
			}
			fmt.Fprintf(w, "    < %d %s\n", ex.StatusCode, strings.TrimSpace(ex.ResponseBody))
		}
	}

	_, err := fmt.Fprintf(w, "\n%d passed, %d failed, %d errored in %s\n", r.Passed, r.Failed, r.Errored, r.Duration.Round(time.Millisecond))
	return err
}

func indent(s, prefix string) string {
	return strings.ReplaceAll(s, "\n", "\n"+prefix)
}
