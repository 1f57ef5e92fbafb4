package bandit

import "errors"

var (
	// ErrNoArms is returned when Select is called with an empty arm list.
	ErrNoArms = errors.New("no arms to select from")

	// ErrDimensionMismatch is returned when a feature vector's length does
	// not match the router dimension.
	ErrDimensionMismatch = errors.New("feature dimension mismatch")

	// ErrInvalidDimension is returned when constructing a LinUCB router
	// with a non-positive dimension.
	ErrInvalidDimension = errors.New("dimension must be positive")
)
