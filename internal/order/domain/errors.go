package domain

import "errors"

var (
	ErrInvalidID       = errors.New("invalid_id")
	ErrNotFound        = errors.New("order_not_found")
	ErrInvalidState    = errors.New("invalid_order_state")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrInvalidPrice    = errors.New("invalid_price")
)
