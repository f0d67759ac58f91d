package orders

import "errors"

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrDuplicateOrder      = errors.New("order already exists")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrExceedsOriginalSize = errors.New("fill exceeds original size")
)
