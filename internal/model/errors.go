package model

import "errors"

var (
	// ErrFetchFailure wraps any error returned while fetching the input document.
	ErrFetchFailure = errors.New("fetch failure")

	// ErrInvalidParameter is returned for an indicator length, color or width
	// outside the allowed range.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrUninitialized is returned by session operations invoked before Initialize.
	ErrUninitialized = errors.New("session not initialized")

	// ErrAlreadyInitialized is returned when Initialize is called twice.
	ErrAlreadyInitialized = errors.New("session already initialized")

	// ErrEmptySeries rejects an overlay draw while no base series is loaded.
	ErrEmptySeries = errors.New("base series is empty")

	// ErrSuperseded is returned by a load whose result was discarded because a
	// newer load started before it could be applied.
	ErrSuperseded = errors.New("load superseded by a newer load")
)
