package types

import "fmt"

// NetworkError wraps a connection/timeout/protocol failure after transport retries.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// BrokerRejection is an application-level 4xx/5xx answer. Terminal for the attempt.
type BrokerRejection struct {
	Code    int
	Message string
}

func (e *BrokerRejection) Error() string {
	return fmt.Sprintf("broker rejected request: %d %s", e.Code, e.Message)
}

// DataUnavailable marks a missing price or news payload.
type DataUnavailable struct {
	Symbol string
	What   string
	Err    error
}

func (e *DataUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s unavailable for %s: %v", e.What, e.Symbol, e.Err)
	}
	return fmt.Sprintf("%s unavailable for %s", e.What, e.Symbol)
}

func (e *DataUnavailable) Unwrap() error { return e.Err }

// ConfigurationError is fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

type StatePersistenceError struct {
	Path string
	Err  error
}

func (e *StatePersistenceError) Error() string {
	return fmt.Sprintf("state persistence failed (%s): %v", e.Path, e.Err)
}

func (e *StatePersistenceError) Unwrap() error { return e.Err }
