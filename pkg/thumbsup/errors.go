package thumbsup

import (
	"errors"
)

var (
	ErrClosed              = errors.New("closed")
	ErrInvalidDirection    = errors.New("direction must be up or down")
	ErrConstraintViolation = errors.New("referenced voter or voteable does not exist")
	ErrConflict            = errors.New("conflicting concurrent write")
	ErrUnknownDimension    = errors.New("dimension is not declared for voteable type")
	ErrInvalidEntity       = errors.New("entity type tag and identifier are required")
)
