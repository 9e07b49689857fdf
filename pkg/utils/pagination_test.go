package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPaginationBounds(t *testing.T) {
	p := NewPagination(0, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, defaultPageSize, p.PageSize)
	assert.Equal(t, 0, p.Offset())

	p = NewPagination(3, 1000)
	assert.Equal(t, maxPageSize, p.PageSize)
	assert.Equal(t, 200, p.Offset())

	p = NewPagination(1, 10)
	p.SetTotal(21)
	assert.Equal(t, int64(3), p.Pages)
}

func TestParseID(t *testing.T) {
	assert.Equal(t, uint(42), ParseID("42"))
	assert.Equal(t, uint(7), ParseID(" 7 "))
	assert.Zero(t, ParseID(""))
	assert.Zero(t, ParseID("abc"))
	assert.Zero(t, ParseID("-1"))
	assert.Equal(t, 5, AtoiDefault("x", 5))
	assert.Equal(t, 9, AtoiDefault("9", 5))
}
