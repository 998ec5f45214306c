package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePaginationDefaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/accounts/x/transactions", nil)
	limit, offset := parsePagination(r)
	assert.Equal(t, defaultPageLimit, limit)
	assert.Equal(t, 0, offset)
}

func TestParsePaginationExplicit(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?limit=10&offset=30", nil)
	limit, offset := parsePagination(r)
	assert.Equal(t, 10, limit)
	assert.Equal(t, 30, offset)
}

func TestParsePaginationClampsAndIgnoresGarbage(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?limit=9999&offset=-2", nil)
	limit, offset := parsePagination(r)
	assert.Equal(t, maxPageLimit, limit)
	assert.Equal(t, 0, offset)

	r = httptest.NewRequest("GET", "/x?limit=abc&offset=xyz", nil)
	limit, offset = parsePagination(r)
	assert.Equal(t, defaultPageLimit, limit)
	assert.Equal(t, 0, offset)
}
