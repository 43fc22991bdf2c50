package estimate

import "errors"

var (
	ErrUnknownField     = errors.New("unknown row field")
	ErrUnknownSection   = errors.New("unknown section")
	ErrSectionExists    = errors.New("section already added")
	ErrSectionNotFound  = errors.New("section not in estimate")
	ErrRowOutOfRange    = errors.New("row index out of range")
	ErrInvalidProviders = errors.New("invalid provider allocation")
)
