package domain

import "errors"

var (
	// ErrInvalidQuery is returned for blank queries or non-positive result limits
	ErrInvalidQuery = errors.New("invalid query")
	// ErrRetrievalUnavailable is returned when no embedding tier or index can serve a request
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrGenerationUnavailable is returned when every generation tier failed
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("not found")
)
