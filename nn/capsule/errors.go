package capsule

import "github.com/pkg/errors"

// Errors returned by the capsule network. They are wrapped with context, so
// test for them with errors.Is.
var (
	// ErrShapeMismatch is returned when an input does not match the dimensions
	// the network was constructed with. It is raised before any computation.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrNumericInstability is returned when an input or intermediate value is
	// NaN or infinite.
	ErrNumericInstability = errors.New("numeric instability")

	// ErrConfiguration is returned for invalid construction or call options.
	ErrConfiguration = errors.New("invalid configuration")
)
