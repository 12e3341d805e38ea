package worker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSize(t *testing.T) {
	assert.NoError(t, CheckSize(0))
	assert.NoError(t, CheckSize(MaxObjectSize))

	err := CheckSize(MaxObjectSize + 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSizeLimitExceeded)

	var sizeErr *SizeLimitError
	require.True(t, errors.As(err, &sizeErr))
	assert.Equal(t, MaxObjectSize+1, sizeErr.Size)
	assert.Equal(t, MaxObjectSize, sizeErr.Limit)
}

func TestIsRetriableError(t *testing.T) {
	assert.False(t, isRetriableError(nil))
	assert.True(t, isRetriableError(errors.New("connection reset")))
	assert.False(t, isRetriableError(fmt.Errorf("entry 3: %w", CheckSize(MaxObjectSize*2))))
	assert.False(t, isRetriableError(fmt.Errorf("entry 4: %w", checkEntryName("../x"))))
}
