package id

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDNewID(t *testing.T) {
	t.Parallel()

	gen := UUID{}
	id1, err := gen.NewID()
	require.NoError(t, err)
	id2, err := gen.NewID()
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	parsed, err := uuid.Parse(id1)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestSequence(t *testing.T) {
	t.Parallel()

	seq := &Sequence{Prefix: "job"}
	first, err := seq.NewID()
	require.NoError(t, err)
	second, err := seq.NewID()
	require.NoError(t, err)
	assert.Equal(t, "job-000001", first)
	assert.Equal(t, "job-000002", second)
}
