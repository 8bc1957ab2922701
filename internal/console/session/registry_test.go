package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/product-console/internal/catalog/client"
	"github.com/tair/product-console/internal/catalog/client/clienttest"
	"github.com/tair/product-console/internal/catalog/controller"
	"github.com/tair/product-console/internal/catalog/domain"
	"github.com/tair/product-console/internal/catalog/notify"
)

func newRegistry(t *testing.T) (*Registry, *clienttest.Backend) {
	t.Helper()
	backend := clienttest.New()
	t.Cleanup(backend.Close)
	backend.SetProducts("F1", domain.Product{SKU: "A", Name: "Apple jam"})

	bc := client.New(client.Config{BaseURL: backend.URL()})
	r := NewRegistry(func(id string) *controller.Controller {
		return controller.New(id, bc, nil, nil, controller.Config{})
	}, time.Hour)
	return r, backend
}

func TestRegistry_GetCreatesOnce(t *testing.T) {
	r, _ := newRegistry(t)

	a := r.Get("s1")
	assert.Same(t, a, r.Get("s1"))
	assert.NotSame(t, a, r.Get("s2"))
	assert.Equal(t, 2, r.Len())

	_, ok := r.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistry_Sweep(t *testing.T) {
	r, _ := newRegistry(t)
	now := time.Unix(1700000000, 0)
	r.now = func() time.Time { return now }

	r.Get("old")
	now = now.Add(30 * time.Minute)
	r.Get("fresh")
	now = now.Add(45 * time.Minute)

	assert.Equal(t, 1, r.Sweep())
	_, ok := r.Lookup("old")
	assert.False(t, ok)
	_, ok = r.Lookup("fresh")
	assert.True(t, ok)
}

func TestRegistry_FansOutEvents(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	loaded := r.Get("s1")
	_, err := loaded.SelectFarm(ctx, "F1")
	require.NoError(t, err)
	idle := r.Get("s2")

	event := notify.Event{Kind: notify.EventContent, FarmID: "F1", SKU: "A", Field: domain.FieldShort, Content: "Sweet"}
	require.NoError(t, r.HandleEvent(ctx, event))

	assert.Equal(t, "Sweet", loaded.Products()[0].ShortDescription)
	assert.Empty(t, idle.Products())
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID(NewID()))
	assert.False(t, ValidID("abc"))
	assert.False(t, ValidID(""))
}
