package model

import (
	"errors"
	"fmt"
)

// ErrSourceUnavailable marks a retryable source failure: network error,
// timeout, or 5xx from a regulatory API. The aggregator converts it into a
// degraded-category marker rather than propagating it to callers.
var ErrSourceUnavailable = errors.New("compliance source unavailable")

// SourceUnavailable wraps err as a source-unavailable failure for the named
// source. The result matches errors.Is(err, ErrSourceUnavailable).
func SourceUnavailable(source string, err error) error {
	return fmt.Errorf("%s: %w: %v", source, ErrSourceUnavailable, err)
}

// SourceDataInvalidError marks a malformed or unexpectedly shaped source
// record. Not retryable: the record is logged and skipped.
type SourceDataInvalidError struct {
	Source   string
	NativeID string
	Reason   string
}

func (e *SourceDataInvalidError) Error() string {
	return fmt.Sprintf("%s record %q: invalid source data: %s", e.Source, e.NativeID, e.Reason)
}

// BuildingNotFoundError marks a building with no address/identifier mapping.
// Fatal for that building only; the batch continues.
type BuildingNotFoundError struct {
	BuildingID string
}

func (e *BuildingNotFoundError) Error() string {
	return fmt.Sprintf("building %q not found in registry", e.BuildingID)
}
