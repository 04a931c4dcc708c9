package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so callers can classify failures with errors.Is:
// - ErrNotFound: key or resource does not exist in a store
// - ErrInvalidInput: caller supplied a value the layer cannot accept
// - ErrUnavailable: backing service or resource temporarily unavailable
// - ErrConflict: resource is already registered under that name
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("unavailable")
	ErrConflict     = errors.New("conflict")
)
