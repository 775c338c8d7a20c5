package auth

import "errors"

var (
	ErrPasswordsDontMatch = errors.New("passwords do not match")
	ErrUnknownRole        = errors.New("unknown role")
)
