package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyClosed    = errors.New("position already closed")
	ErrDuplicateID      = errors.New("duplicate position id")
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrBrokerRejected   = errors.New("broker rejected order")
	ErrMarketClosed     = errors.New("market closed")
	ErrInsufficientCash = errors.New("insufficient cash")
)
