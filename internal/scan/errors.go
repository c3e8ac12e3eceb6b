package scan

import "errors"

var (
	ErrInvalidFilter = errors.New("invalid filter")
	ErrInvalidRange  = errors.New("invalid skip range")
	ErrUnsatisfiable = errors.New("unsatisfiable filter")
)
