package store

import "errors"

var (
	ErrClosed  = errors.New("store is closed")
	ErrEmptyID = errors.New("record id is required")
)
