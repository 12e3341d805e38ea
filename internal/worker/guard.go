package worker

import (
	"errors"
	"fmt"
)

// MaxObjectSize is the largest object a single PUT may create (5 GiB)
const MaxObjectSize int64 = 5 * 1024 * 1024 * 1024

// ErrSizeLimitExceeded marks entries too large to upload. It is never retried.
var ErrSizeLimitExceeded = errors.New("entry exceeds maximum object size")

// SizeLimitError reports the declared size of an oversized entry
type SizeLimitError struct {
	Size  int64
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("entry size %d is larger than the maximum object size %d", e.Size, e.Limit)
}

// Is matches ErrSizeLimitExceeded
func (e *SizeLimitError) Is(target error) bool {
	return target == ErrSizeLimitExceeded
}

// CheckSize rejects entries whose declared size exceeds MaxObjectSize
func CheckSize(size int64) error {
	if size > MaxObjectSize {
		return &SizeLimitError{Size: size, Limit: MaxObjectSize}
	}
	return nil
}
