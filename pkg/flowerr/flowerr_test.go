package flowerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrInvalidArgument, CodeInvalidArgument},
		{ErrOutOfMemory, CodeOutOfMemory},
		{ErrNotFound, CodeNotFound},
		{ErrInvalidState, CodeInvalidState},
		{ErrOverflow, CodeOverflow},
		{ErrIO, CodeIO},
		{errors.New("opaque"), CodeUnknown},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Code(tc.err), tc.err.Error())
	}
}

func TestCodeUnwrapsCause(t *testing.T) {
	wrapped := fmt.Errorf("open sensor: %w", ErrIO)
	assert.Equal(t, CodeIO, Code(wrapped))
	assert.Equal(t, CodeIO, Code(fmt.Errorf("outer: %w", wrapped)))
}
