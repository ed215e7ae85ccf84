package domain

import "errors"

var (
	ErrInvalidArgument  = errors.New("domain: invalid argument")
	ErrTrackNotFound    = errors.New("domain: track not found")
	ErrAnalysisNotFound = errors.New("domain: analysis not found")

	// ErrFileNotFound and ErrUnsupportedFormat are raised by the metadata loader.
	ErrFileNotFound      = errors.New("domain: audio file not found")
	ErrUnsupportedFormat = errors.New("domain: unsupported audio format")

	// ErrInferenceUnavailable and ErrUnparseableResponse never leave an analyzer.
	ErrInferenceUnavailable = errors.New("domain: inference unavailable")
	ErrUnparseableResponse  = errors.New("domain: unparseable inference response")

	ErrPersistence = errors.New("domain: persistence failure")
)
