package order

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderID_TimestampNotInFuture(t *testing.T) {
	for i := 0; i < 1000; i++ {
		id := NewOrderID()
		now := time.Now()
		assert.False(t, id.Time().After(now))
		assert.NoError(t, id.Validate(now))
	}
}

func TestNewOrderID_EmbedsCreationTime(t *testing.T) {
	before := time.Now().Truncate(time.Millisecond)
	id := NewOrderID()
	after := time.Now()

	assert.False(t, id.Time().Before(before))
	assert.False(t, id.Time().After(after))
}

func TestNewOrderID_PairwiseDistinct(t *testing.T) {
	for batch := 0; batch < 10; batch++ {
		seen := make(map[OrderID]struct{}, 1000)
		for i := 0; i < 1000; i++ {
			id := NewOrderID()
			_, dup := seen[id]
			require.False(t, dup, "duplicate id %s in batch %d", id, batch)
			seen[id] = struct{}{}
		}
	}
}

func TestNewOrderID_MonotonicWithinBatch(t *testing.T) {
	prev := NewOrderID()
	for i := 0; i < 1000; i++ {
		next := NewOrderID()
		assert.Less(t, prev.String(), next.String())
		prev = next
	}
}

func TestOrderID_EqualityByRawValue(t *testing.T) {
	id := NewOrderID()
	raw := id.UUID()

	a := OrderIDFromUUID(raw)
	b := OrderIDFromUUID(raw)

	assert.Equal(t, a, b)
	assert.True(t, a == b)

	m := map[OrderID]int{a: 1}
	assert.Equal(t, 1, m[b])
}

func TestParseOrderID(t *testing.T) {
	t.Run("round trips", func(t *testing.T) {
		id := NewOrderID()
		parsed, err := ParseOrderID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	})

	t.Run("rejects malformed text", func(t *testing.T) {
		_, err := ParseOrderID("not-an-id")
		assert.ErrorIs(t, err, shared.ErrInvalidOrderID)
		assert.Equal(t, shared.KindInvalid, shared.KindOf(err))
	})

	t.Run("rejects non time-ordered uuid", func(t *testing.T) {
		_, err := ParseOrderID(uuid.New().String())
		assert.ErrorIs(t, err, shared.ErrInvalidOrderID)
	})

	t.Run("rejects future timestamp", func(t *testing.T) {
		id := NewOrderID()
		err := id.Validate(time.Now().Add(-time.Hour))
		assert.ErrorIs(t, err, shared.ErrInvalidOrderID)
	})
}

func TestOrderID_JSON(t *testing.T) {
	type wrapper struct {
		ID OrderID `json:"id"`
	}
	in := wrapper{ID: NewOrderID()}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), in.ID.String())

	var out wrapper
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.ID, out.ID)
}
