package snowflake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator(t *testing.T) {
	require.NoError(t, Init(1, 1))

	a, err := NextID()
	require.NoError(t, err)
	b, err := NextID()
	require.NoError(t, err)
	assert.Greater(t, b, a)

	s, err := NextString()
	require.NoError(t, err)
	assert.NotEmpty(t, s)
}
