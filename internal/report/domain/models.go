package domain

import (
	"strings"
	"time"

	metricsdomain "github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain"
)

const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerRunNow    = "run_now"
)

// Field is one labelled line of a report.
type Field struct {
	Label string
	Value string
}

// Report is a rendered snapshot ready for delivery. Sinks choose their own
// markup from these parts.
type Report struct {
	Title       string
	Header      string
	Fields      []Field
	Footer      string
	GeneratedAt time.Time
	Snapshot    metricsdomain.Snapshot
}

// Text renders the report as plain text.
func (r Report) Text() string {
	var b strings.Builder
	b.WriteString(r.Header)
	b.WriteString("\n\n")
	for _, f := range r.Fields {
		b.WriteString(f.Label)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString("\n")
	}
	if r.Footer != "" {
		b.WriteString("\n")
		b.WriteString(r.Footer)
	}
	return b.String()
}

// RunOptions controls a single report run.
type RunOptions struct {
	Trigger string
	// Guard claims the day's delivery lock so replicas send one report.
	Guard bool
}

type RunResult struct {
	RunID     string
	Trigger   string
	Skipped   bool
	Report    Report
	Delivered []string
}
