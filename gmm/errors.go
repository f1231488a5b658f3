package gmm

import (
	"errors"

	"github.com/ieee0824/voiceprint-go/internal/store"
)

// Error kinds shared by the gmm, mapadapt and ivector packages.
// Returned errors wrap one of these; test with errors.Is.
var (
	// ErrPrecondition is returned when a required collaborator (such as a prior model) is unset.
	ErrPrecondition = errors.New("precondition failed")
	// ErrShapeMismatch is returned when two objects disagree on component count or feature dimension.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrInvalidArgument is returned for out-of-range or malformed arguments.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrFormat is returned when a persisted record cannot be read.
	ErrFormat = store.ErrFormat
)
