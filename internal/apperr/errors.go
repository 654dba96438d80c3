package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrRepoState     = errors.New("repository state")
	ErrCacheWrite    = errors.New("cache write")
	ErrAlreadyExists = errors.New("already exists")
)
