package models

import "errors"

var (
	ErrMissingColumn  = errors.New("required column missing")
	ErrTypeConversion = errors.New("value cannot be converted")
	ErrEmptyInput     = errors.New("input table is empty")
	ErrDuplicateKey   = errors.New("duplicate pivot key")
)
