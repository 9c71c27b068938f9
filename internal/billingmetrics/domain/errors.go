package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDataSource         = errors.New("data_source_error")
	ErrMetricsComputation = errors.New("metrics_computation_failed")
	ErrMissingPageToken   = errors.New("missing_page_token")
)

// DataSourceError marks a failure talking to the subscription provider.
type DataSourceError struct {
	Op  string
	Err error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("data source %s: %v", e.Op, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

func (e *DataSourceError) Is(target error) bool { return target == ErrDataSource }

// NewDataSourceError wraps err unless it already carries a DataSourceError.
func NewDataSourceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var dsErr *DataSourceError
	if errors.As(err, &dsErr) {
		return err
	}
	return &DataSourceError{Op: op, Err: err}
}

// MetricsComputationError aborts a snapshot; Metric names the failing step.
type MetricsComputationError struct {
	Metric string
	Err    error
}

func (e *MetricsComputationError) Error() string {
	return fmt.Sprintf("compute %s: %v", e.Metric, e.Err)
}

func (e *MetricsComputationError) Unwrap() error { return e.Err }

func (e *MetricsComputationError) Is(target error) bool { return target == ErrMetricsComputation }

func NewMetricsComputationError(metric string, err error) error {
	if err == nil {
		return nil
	}
	return &MetricsComputationError{Metric: metric, Err: err}
}
