package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/AegisSentinel/internal/domain"
)

func TestMemQueueKeepsJournalOrder(t *testing.T) {
	q := NewMemQueue(4)

	require.True(t, q.Enqueue(7, &domain.Incident{MachineID: "CNC-001"}))
	require.True(t, q.Enqueue(8, &domain.Incident{MachineID: "FAC-001"}))

	first := q.DequeueBatch(1)
	require.Len(t, first, 1)
	assert.EqualValues(t, 7, first[0].ID)
	assert.Equal(t, "CNC-001", first[0].Incident.MachineID)

	rest := q.DequeueBatch(10)
	require.Len(t, rest, 1)
	assert.EqualValues(t, 8, rest[0].ID)

	assert.Zero(t, q.Len())
	assert.Nil(t, q.DequeueBatch(5))
}

func TestMemQueueRejectsWhenFull(t *testing.T) {
	q := NewMemQueue(2)
	inc := &domain.Incident{MachineID: "BOND-01"}

	assert.True(t, q.Enqueue(1, inc))
	assert.True(t, q.Enqueue(2, inc))
	assert.False(t, q.Enqueue(3, inc))

	q.DequeueBatch(1)
	assert.True(t, q.Enqueue(4, inc))
	assert.Equal(t, 2, q.Len())
}
