package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoSinks        = errors.New("no_report_sinks")
	ErrDeliveryFailed = errors.New("report_delivery_failed")
	ErrRateLimited    = errors.New("report_rate_limited")
)

type DeliveryError struct {
	Sink string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver report to %s: %v", e.Sink, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDeliveryFailed }
