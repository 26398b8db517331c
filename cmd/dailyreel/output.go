package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dukex/dailyreel/pkg/events"
	"github.com/dukex/dailyreel/pkg/models"
	"github.com/urfave/cli/v3"
)

// printer renders command results as text or JSON.
type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(command *cli.Command) *printer {
	w := command.Root().Writer
	if w == nil {
		w = os.Stdout
	}

	return &printer{w: w, json: command.Bool("json")}
}

func (p *printer) encode(v any) {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func (p *printer) line(s string) {
	if p.json {
		p.encode(map[string]string{"message": s})
		return
	}

	fmt.Fprintln(p.w, s)
}

func (p *printer) event(e models.StepEvent) {
	if p.json {
		data, _ := json.Marshal(e)
		fmt.Fprintln(p.w, string(data))

		return
	}

	ts := e.Timestamp.Format(time.TimeOnly)

	switch e.Kind {
	case models.StepEventStep:
		attempt := ""
		if e.Attempt > 0 {
			attempt = fmt.Sprintf(" (attempt %d)", e.Attempt)
		}

		fmt.Fprintf(p.w, "%s  #%-3d %-16s %s%s", ts, e.Seq, e.Step, e.Status, attempt)
	case models.StepEventSnapshot:
		fmt.Fprintf(p.w, "%s  #%-3d run %s %s", ts, e.Seq, e.RunID, e.RunStatus)

		if e.Record != nil {
			fmt.Fprintf(p.w, ", %d step(s) recorded", len(e.Record.Steps))
		}
	default:
		fmt.Fprintf(p.w, "%s  #%-3d run %s %s", ts, e.Seq, e.RunID, e.RunStatus)
	}

	if e.Message != "" {
		fmt.Fprintf(p.w, ": %s", e.Message)
	}

	fmt.Fprintln(p.w)
}

// busEvent prints an event received from the bus, one per line.
func (p *printer) busEvent(event events.Event) {
	if p.json {
		data, _ := json.Marshal(event)
		fmt.Fprintln(p.w, string(data))

		return
	}

	base := event.Base()
	fmt.Fprintf(p.w, "%s  %s #%-3d ", base.Timestamp.Format(time.TimeOnly), base.RunID, base.Seq)

	switch e := event.(type) {
	case events.RunStarted:
		fmt.Fprintf(p.w, "run started (%s, attempt %d)", e.Mode, e.Attempts)
	case events.StepTransition:
		fmt.Fprintf(p.w, "%-16s %s", e.Step, e.Status)

		if e.ErrorCode != "" {
			fmt.Fprintf(p.w, " [%s]", e.ErrorCode)
		}
	case events.RunFinished:
		fmt.Fprintf(p.w, "run %s", e.Status)

		if e.Error != "" {
			fmt.Fprintf(p.w, ": %s", e.Error)
		}
	default:
		fmt.Fprint(p.w, event.GetType())
	}

	fmt.Fprintln(p.w)
}

func (p *printer) record(r *models.RunRecord) {
	if p.json {
		p.encode(r)
		return
	}

	fmt.Fprintf(p.w, "Run %s (%s): %s, attempt %d\n", r.ID, r.Mode, r.Status, r.Attempts)

	if r.Error != "" {
		fmt.Fprintf(p.w, "Failed at %s: %s\n", r.FailedStep, r.Error)
	}

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSTATUS\tATTEMPTS\tOUTPUT\tERROR")

	for _, s := range r.Steps {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", s.Step, s.Status, s.AttemptCount, dash(s.OutputRef), dash(s.Error))
	}

	_ = tw.Flush()
}

func (p *printer) records(records []*models.RunRecord) {
	if p.json {
		p.encode(records)
		return
	}

	if len(records) == 0 {
		fmt.Fprintln(p.w, "No runs")
		return
	}

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tMODE\tSTATUS\tATTEMPTS\tFAILED STEP")

	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.Mode, r.Status, r.Attempts, dash(string(r.FailedStep)))
	}

	_ = tw.Flush()
}

func (p *printer) bundle(b *models.OutputBundle) {
	if p.json {
		p.encode(b)
		return
	}

	fmt.Fprintf(p.w, "%s\n", b.Dir)

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', tabwriter.AlignRight)

	for _, f := range b.Files {
		fmt.Fprintf(tw, "%d\t  %s\t\n", f.Size, f.Name)
	}

	_ = tw.Flush()
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}

	return s
}
