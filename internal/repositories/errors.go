package repositories

import "errors"

// IsOrderNumberTaken reports whether err means the order number reservation
// lost a uniqueness race. Covers both the sentinel and storage errors whose
// backend flags a unique creation conflict.
func IsOrderNumberTaken(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOrderNumberTaken) {
		return true
	}
	var unique interface{ IsAlreadyExists() bool }
	if errors.As(err, &unique) {
		return unique.IsAlreadyExists()
	}
	return false
}

// IsNotFound reports whether err categorizes as a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

// IsConflict reports whether err categorizes as a conflicting write, which
// includes aborted transactions under contention.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsConflict()
	}
	return false
}
