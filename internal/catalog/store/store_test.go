package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/product-console/internal/catalog/domain"
)

func twoProducts() []domain.Product {
	return []domain.Product{
		{SKU: "A", Name: "Apple jam"},
		{SKU: "B", Name: "Goat cheese"},
	}
}

func TestStore_ReplaceAndGet(t *testing.T) {
	s := New()
	input := twoProducts()
	s.Replace("F1", input)

	assert.Equal(t, "F1", s.FarmID())
	assert.Equal(t, 2, s.Len())

	p, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "B", p.SKU)

	// the store owns its copy
	input[0].Name = "changed"
	p, _ = s.Get(0)
	assert.Equal(t, "Apple jam", p.Name)
}

func TestStore_GetOutOfRange(t *testing.T) {
	s := New()
	s.Replace("F1", twoProducts())

	for _, idx := range []int{-1, 2, 100} {
		_, err := s.Get(idx)
		assert.True(t, domain.IsKind(err, domain.KindIndexOutOfRange), "index %d", idx)
	}
	assert.True(t, domain.IsKind(s.SetConfirmed(2, true), domain.KindIndexOutOfRange))
	assert.True(t, domain.IsKind(s.SetField(-1, domain.FieldShort, "x"), domain.KindIndexOutOfRange))
}

func TestStore_SetFieldAndConfirmed(t *testing.T) {
	s := New()
	s.Replace("F1", twoProducts())

	require.NoError(t, s.SetField(0, domain.FieldShort, "S"))
	require.NoError(t, s.SetField(0, domain.FieldLong, "L"))
	require.NoError(t, s.SetField(0, domain.FieldImages, "/img/a.png"))
	require.NoError(t, s.SetConfirmed(0, true))

	p, _ := s.Get(0)
	assert.Equal(t, "S", p.ShortDescription)
	assert.Equal(t, "L", p.LongDescription)
	assert.Equal(t, "/img/a.png", p.ImagePath)
	assert.True(t, p.IsConfirmed)

	confirmed, total := s.Counts()
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, 2, total)

	assert.Error(t, s.SetField(0, domain.FieldConfirm, "x"))
}

func TestStore_ClearBumpsEpoch(t *testing.T) {
	s := New()
	s.Replace("F1", twoProducts())
	before := s.Epoch()

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "", s.FarmID())
	assert.Greater(t, s.Epoch(), before)

	confirmed, total := s.Counts()
	assert.Zero(t, confirmed)
	assert.Zero(t, total)
}

func TestStore_IndexOf(t *testing.T) {
	s := New()
	s.Replace("F1", twoProducts())

	idx, ok := s.IndexOf("B")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = s.IndexOf("Z")
	assert.False(t, ok)
}
