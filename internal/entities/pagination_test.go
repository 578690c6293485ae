package entities

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPagination(t *testing.T) {
	tests := []struct {
		name        string
		page, limit int
		total       int
		want        Pagination
	}{
		{"first of three", 1, 10, 25, Pagination{Page: 1, Limit: 10, Total: 25, TotalPages: 3, HasNext: true}},
		{"middle", 2, 10, 25, Pagination{Page: 2, Limit: 10, Total: 25, TotalPages: 3, HasNext: true, HasPrev: true}},
		{"last", 3, 10, 25, Pagination{Page: 3, Limit: 10, Total: 25, TotalPages: 3, HasPrev: true}},
		{"empty", 1, 20, 0, Pagination{Page: 1, Limit: 20}},
		{"defaults", 0, 0, 5, Pagination{Page: 1, Limit: DefaultPageLimit, Total: 5, TotalPages: 1}},
		{"limit capped", 1, 500, 150, Pagination{Page: 1, Limit: MaxPageLimit, Total: 150, TotalPages: 2, HasNext: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NewPagination(tt.page, tt.limit, tt.total))
		})
	}
}

func TestOffset(t *testing.T) {
	require.Equal(t, 0, Offset(1, 20))
	require.Equal(t, 40, Offset(3, 20))
	require.Equal(t, 0, Offset(-1, 20))
}
