package internal

import "errors"

var (
	ErrVersionMismatch = errors.New("version mismatch")
	ErrResourceExists  = errors.New("resource exists")
	ErrNotFound        = errors.New("not found")
)

type Cond[M any] func(curr VersionContainer[M]) error

func WhenVersionMatches[M any](target int64) Cond[M] {
	return func(curr VersionContainer[M]) error {
		if curr.Version != target {
			return ErrVersionMismatch
		}
		return nil
	}
}

func WhenNotExists[M any]() Cond[M] {
	return func(curr VersionContainer[M]) error {
		if curr.Version != 0 {
			return ErrResourceExists
		}
		return nil
	}
}

func WhenExists[M any]() Cond[M] {
	return func(curr VersionContainer[M]) error {
		if curr.Version == 0 {
			return ErrNotFound
		}
		return nil
	}
}
