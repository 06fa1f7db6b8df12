package shared

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampPageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, ClampPageSize(0))
	assert.Equal(t, DefaultPageSize, ClampPageSize(-4))
	assert.Equal(t, 25, ClampPageSize(25))
	assert.Equal(t, MaxPageSize, ClampPageSize(MaxPageSize))
	assert.Equal(t, MaxPageSize, ClampPageSize(1000))
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 10, 25)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 10, p.Offset())
	assert.True(t, p.InRange())

	p = NewPagination(4, 10, 25)
	assert.False(t, p.InRange())

	p = NewPagination(0, 10, 25)
	assert.False(t, p.InRange())
	assert.Equal(t, 0, p.Offset())

	p = NewPagination(1<<62, 10, 25)
	assert.False(t, p.Addressable())
	assert.False(t, p.InRange())
	assert.Equal(t, math.MaxInt, p.Offset())

	p = NewPagination(math.MaxInt/MaxPageSize+1, MaxPageSize, 0)
	assert.True(t, p.Addressable())
	assert.GreaterOrEqual(t, p.Offset(), 0)

	p = NewPagination(1, 0, 0)
	assert.Equal(t, DefaultPageSize, p.PageSize)
	assert.Equal(t, 0, p.TotalPages)
	assert.False(t, p.InRange())
}
