package service

import (
	"context"
	"errors"
	"strings"

	obsmetrics "github.com/smallbiznis/revenuepulse/internal/observability/metrics"
	reportdomain "github.com/smallbiznis/revenuepulse/internal/report/domain"
	"go.uber.org/zap"
)

// Dispatcher delivers reports to the sinks named in the report settings.
type Dispatcher struct {
	sinks   map[string]reportdomain.Sink
	log     *zap.Logger
	metrics *obsmetrics.ReportMetrics
}

func NewDispatcher(sinks []reportdomain.Sink, log *zap.Logger, metrics *obsmetrics.ReportMetrics) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	byName := make(map[string]reportdomain.Sink, len(sinks))
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		byName[strings.ToLower(sink.Name())] = sink
	}
	return &Dispatcher{sinks: byName, log: log, metrics: metrics}
}

// Select resolves sink names to configured sinks. Names without credentials
// are skipped; an empty result is ErrNoSinks.
func (d *Dispatcher) Select(names []string) ([]reportdomain.Sink, error) {
	selected := make([]reportdomain.Sink, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		sink, ok := d.sinks[name]
		if !ok {
			d.log.Warn("report sink not configured", zap.String("sink", name))
			continue
		}
		selected = append(selected, sink)
	}
	if len(selected) == 0 {
		return nil, reportdomain.ErrNoSinks
	}
	return selected, nil
}

// Deliver sends report to every sink, returning the names that succeeded and
// the joined failures of the rest.
func (d *Dispatcher) Deliver(ctx context.Context, report reportdomain.Report, sinks []reportdomain.Sink) ([]string, error) {
	if len(sinks) == 0 {
		return nil, reportdomain.ErrNoSinks
	}

	var (
		delivered []string
		err       error
	)
	for _, sink := range sinks {
		deliverErr := sink.Deliver(ctx, report)
		d.metrics.IncDelivery(sink.Name(), deliverErr)
		if deliverErr != nil {
			d.log.Warn("report delivery failed", zap.String("sink", sink.Name()), zap.Error(deliverErr))
			err = errors.Join(err, &reportdomain.DeliveryError{Sink: sink.Name(), Err: deliverErr})
			continue
		}
		delivered = append(delivered, sink.Name())
	}
	return delivered, err
}
