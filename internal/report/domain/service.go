package domain

import (
	"context"

	metricsdomain "github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain"
)

type Service interface {
	// Run computes a snapshot, renders it and delivers it to every
	// configured sink.
	Run(ctx context.Context, opts RunOptions) (RunResult, error)
	// Render formats a snapshot with the current report settings.
	Render(snapshot metricsdomain.Snapshot) Report
}
