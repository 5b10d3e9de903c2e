// Package output formats command results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/radiorec/radiorec/internal/backend"
	"github.com/radiorec/radiorec/internal/upload"
)

// Formatter writes human-readable or JSON output.
type Formatter struct {
	w    io.Writer
	json bool
}

func NewFormatter(w io.Writer, asJSON bool) *Formatter {
	return &Formatter{w: w, json: asJSON}
}

// JSON reports whether results are printed as JSON.
func (f *Formatter) JSON() bool { return f.json }

// Encode prints v as indented JSON.
func (f *Formatter) Encode(v any) error {
	enc := json.NewEncoder(f.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "%s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✓ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "! %s\n", msg)
}

// Upload prints an upload outcome.
func (f *Formatter) Upload(o upload.Outcome) error {
	if f.json {
		type result struct {
			OK          bool               `json:"ok"`
			RecordingID int64              `json:"recording_id,omitempty"`
			Recording   *backend.Recording `json:"recording,omitempty"`
			Error       string             `json:"error,omitempty"`
		}
		r := result{OK: o.OK(), RecordingID: o.ID, Recording: o.Recording}
		if o.Failure != nil {
			r.Error = o.Failure.Message()
		}
		return f.Encode(r)
	}
	if !o.OK() {
		fmt.Fprintf(f.w, "✗ %s\n", o.Failure.Message())
		return nil
	}
	if o.ID == 0 {
		f.Success("Uploaded (the server did not return an id)")
		return nil
	}
	f.Success(fmt.Sprintf("Uploaded recording %d", o.ID))
	return nil
}

// Recordings prints one page of recordings.
func (f *Formatter) Recordings(p *backend.Page[backend.Recording]) error {
	if f.json {
		return f.Encode(p)
	}
	tw := tabwriter.NewWriter(f.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tTYPE\tFORMAT\tDURATION\tCREATED\tFLAGS")
	for i := range p.Results {
		r := &p.Results[i]
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Title, r.Type, r.Format, formatDuration(r),
			r.CreatedAt.Local().Format("2006-01-02 15:04"), flags(r))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(f.w, "\n%d recording(s)", p.Count)
	if p.Next != "" {
		fmt.Fprint(f.w, ", more pages available")
	}
	fmt.Fprintln(f.w)
	return nil
}

// Recording prints a single recording.
func (f *Formatter) Recording(r *backend.Recording) error {
	if f.json {
		return f.Encode(r)
	}
	tw := tabwriter.NewWriter(f.w, 0, 4, 2, ' ', 0)
	row := func(k, v string) { fmt.Fprintf(tw, "%s:\t%s\n", k, v) }
	row("ID", strconv.FormatInt(r.ID, 10))
	row("Title", r.Title)
	row("Type", r.Type)
	if r.CustomName != "" {
		row("Name", r.CustomName)
	}
	row("Format", r.Format)
	row("Duration", formatDuration(r))
	row("Created", r.CreatedAt.Local().Format(time.RFC1123))
	if r.RetainedUntil != nil {
		row("Retained until", r.RetainedUntil.Local().Format(time.RFC1123))
	}
	if r.VADSummary != nil {
		row("Silence", fmt.Sprintf("%.1fs (%.1f%%)", r.VADSummary.TotalSilenceSeconds, r.VADSummary.SilencePercentage))
	}
	if fl := flags(r); fl != "" {
		row("Flags", fl)
	}
	if r.FileURL != "" {
		row("File", r.FileURL)
	}
	return tw.Flush()
}

// Stats prints aggregate statistics.
func (f *Formatter) Stats(s *backend.Stats) error {
	if f.json {
		return f.Encode(s)
	}
	tw := tabwriter.NewWriter(f.w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Total:\t%d\n", s.Total)
	fmt.Fprintf(tw, "Flagged:\t%d\n", s.Flagged)
	for _, t := range backend.RecordingTypes {
		fmt.Fprintf(tw, "  %s:\t%d\n", t, s.ByType[t])
	}
	fmt.Fprintf(tw, "Total duration:\t%s\n", (time.Duration(s.TotalDurationSeconds) * time.Second).String())
	return tw.Flush()
}

func formatDuration(r *backend.Recording) string {
	d, ok := r.Duration()
	if !ok {
		return "-"
	}
	return d.Round(time.Second).String()
}

func flags(r *backend.Recording) string {
	var out []string
	if r.Flagged {
		out = append(out, "flagged")
	}
	if r.IsExpired {
		out = append(out, "expired")
	}
	return strings.Join(out, ",")
}
