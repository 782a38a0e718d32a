package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlabReusesFreedIDs(t *testing.T) {
	var s slab

	idA := s.insert(&Client{Nick: "a"})
	idB := s.insert(&Client{Nick: "b"})
	assert.Equal(t, 2, s.len())

	s.remove(idA)
	assert.Equal(t, 1, s.len())
	assert.Nil(t, s.get(idA))

	idC := s.insert(&Client{Nick: "c"})
	assert.Equal(t, idA, idC, "freed id should be reused before growing")
	assert.Equal(t, 2, s.len())
	assert.Equal(t, "b", s.get(idB).Nick)
}

func TestFoldIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, fold("Nick"), fold("nick"))
	assert.NotEqual(t, fold("Nick"), fold("other"))
}
