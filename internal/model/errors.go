package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies analysis failures.
type ErrorKind string

const (
	KindInsufficientData ErrorKind = "insufficient_data"
	KindUpstreamFetch    ErrorKind = "upstream_fetch_failure"
	KindInvalidSymbol    ErrorKind = "invalid_symbol"
	KindComputation      ErrorKind = "computation_error"
)

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrUpstreamFetch    = errors.New("upstream fetch failure")
	ErrInvalidSymbol    = errors.New("invalid symbol")
	ErrComputation      = errors.New("computation error")
)

var kindSentinels = map[ErrorKind]error{
	KindInsufficientData: ErrInsufficientData,
	KindUpstreamFetch:    ErrUpstreamFetch,
	KindInvalidSymbol:    ErrInvalidSymbol,
	KindComputation:      ErrComputation,
}

// AnalysisError carries the failure kind and the scope (timeframe, period, gap) it applies to.
type AnalysisError struct {
	Kind  ErrorKind
	Scope string
	Msg   string
	Err   error
}

func (e *AnalysisError) Error() string {
	s := string(e.Kind)
	if e.Scope != "" {
		s += " [" + e.Scope + "]"
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *AnalysisError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// InsufficientData builds a scoped InsufficientData error.
func InsufficientData(scope string, have, need int) *AnalysisError {
	return &AnalysisError{
		Kind:  KindInsufficientData,
		Scope: scope,
		Msg:   fmt.Sprintf("need %d bars, have %d", need, have),
	}
}

// KindOf extracts the ErrorKind of err, defaulting to computation_error.
func KindOf(err error) ErrorKind {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindComputation
}
