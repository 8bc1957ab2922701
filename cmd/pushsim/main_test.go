package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/product-console/internal/catalog/domain"
	"github.com/tair/product-console/internal/catalog/notify"
)

type recordingPublisher struct {
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event notify.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestSimulation_Content(t *testing.T) {
	pub := &recordingPublisher{}
	sim := simulation{publisher: pub, base: notify.Event{FarmID: "F1", SKU: "A"}, steps: 4}

	require.NoError(t, sim.run(context.Background(), domain.FieldAll, ""))

	// three progress updates per field, then one content event each
	require.Len(t, pub.events, 8)
	assert.Equal(t, notify.EventProgress, pub.events[0].Kind)
	assert.Equal(t, 25, pub.events[0].Progress)
	assert.Equal(t, 75, pub.events[2].Progress)
	assert.Equal(t, domain.FieldLong, pub.events[3].Field)

	last := pub.events[7]
	assert.Equal(t, notify.EventContent, last.Kind)
	assert.Equal(t, domain.FieldLong, last.Field)
	assert.Contains(t, last.Content, "A")
	assert.Equal(t, "F1", last.FarmID)
}

func TestSimulation_Failure(t *testing.T) {
	pub := &recordingPublisher{}
	sim := simulation{publisher: pub, base: notify.Event{ProductIndex: 2}, steps: 2}

	require.NoError(t, sim.run(context.Background(), domain.FieldAll, "quota exceeded"))

	last := pub.events[len(pub.events)-1]
	assert.Equal(t, notify.EventError, last.Kind)
	assert.Equal(t, domain.FieldAll, last.Field)
	assert.Equal(t, "quota exceeded", last.Message)
}

func TestSimulation_RejectsConfirm(t *testing.T) {
	sim := simulation{publisher: &recordingPublisher{}, steps: 2}
	assert.Error(t, sim.run(context.Background(), domain.FieldConfirm, ""))
}
