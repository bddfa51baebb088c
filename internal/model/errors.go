package model

import "errors"

// Contained failure classes. None of them stop the event stream; they are
// logged and counted where they occur.
var (
	ErrMissingEntity           = errors.New("missing entity")
	ErrAmbiguousReconstruction = errors.New("ambiguous reconstruction")
	ErrSanityRejection         = errors.New("sanity rejection")
)
