package sequence

import (
	"testing"

	"github.com/example/freshcart/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		snapshot *models.Counter
		wantN    int64
		wantID   string
	}{
		{"absent counter", nil, 1, "ORDER-0001"},
		{"existing counter", &models.Counter{LastID: 7}, 8, "ORDER-0008"},
		{"past four digits", &models.Counter{LastID: 9999}, 10000, "ORDER-10000"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n, id := Next(tt.snapshot)
			assert.Equal(t, tt.wantN, n)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	n, err := Parse("ORDER-0042")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	_, err = Parse("ORD-0042")
	assert.Error(t, err)
	_, err = Parse("ORDER-abc")
	assert.Error(t, err)
	_, err = Parse("ORDER-0000")
	assert.Error(t, err)
}
