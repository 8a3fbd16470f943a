package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-service/internal/entity"
)

func TestProjectIsTotal(t *testing.T) {
	want := map[entity.OrderStatus]Customer{
		entity.StatusPlaced:           Placed,
		entity.StatusAccepted:         Preparing,
		entity.StatusPreparing:        Preparing,
		entity.StatusReadyForPickup:   Preparing,
		entity.StatusPickedUp:         OnWay,
		entity.StatusOutForDelivery:   OnWay,
		entity.StatusDelivered:        Done,
		entity.StatusCancelled:        Cancelled,
		entity.StatusCancelledByDP:    CancelledDP,
		entity.StatusCancelledNoItems: CancelledNoItems,
		entity.StatusCancelledByAdmin: CancelledByAdmin,
	}

	raws := RawStatuses()
	require.Len(t, raws, 11)
	seen := map[Customer]bool{}
	for _, raw := range raws {
		got, err := Project(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want[raw], got, raw)
		seen[got] = true
	}
	assert.Len(t, seen, 8)

	_, err := Project("LOST_IN_SPACE")
	assert.Error(t, err)
	assert.False(t, Valid("LOST_IN_SPACE"))
}

func TestProgressMarkers(t *testing.T) {
	p := ProgressOf(Placed)
	assert.Equal(t, [4]Marker{Active, Pending, Pending, Pending}, markers(p))
	assert.False(t, p.Alert)

	p = ProgressOf(Preparing)
	assert.Equal(t, [4]Marker{Passed, Active, Pending, Pending}, markers(p))

	p = ProgressOf(OnWay)
	assert.Equal(t, [4]Marker{Passed, Passed, Active, Pending}, markers(p))

	p = ProgressOf(Done)
	assert.Equal(t, [4]Marker{Passed, Passed, Passed, Active}, markers(p))
	assert.Equal(t, "Done", p.Stages[3].Label)
}

func TestProgressCancelled(t *testing.T) {
	for _, c := range []Customer{Cancelled, CancelledDP, CancelledNoItems, CancelledByAdmin} {
		p := ProgressOf(c)
		assert.Equal(t, [4]Marker{Passed, Passed, Passed, ""}, markers(p), c)
		assert.Equal(t, string(c), p.Stages[3].Label)
		assert.True(t, p.Alert)
	}
}

func TestCancel(t *testing.T) {
	next, err := Cancel(entity.StatusPlaced)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, next)

	for _, raw := range RawStatuses()[1:] {
		next, err := Cancel(raw)
		assert.ErrorIs(t, err, ErrNotCancellable, raw)
		assert.Equal(t, raw, next)
	}
}

func TestScenarioD_PickedUpIsOnWayAndNotCancellable(t *testing.T) {
	order := entity.Order{Status: entity.StatusPlaced}
	Decorate(&order)
	assert.Equal(t, "Placed", order.CustomerStatus)

	order.Status = entity.StatusPickedUp
	Decorate(&order)
	assert.Equal(t, "On Way", order.CustomerStatus)

	_, err := Cancel(order.Status)
	assert.ErrorIs(t, err, ErrNotCancellable)
}

func TestCanRemove(t *testing.T) {
	assert.NoError(t, CanRemove(entity.StatusDelivered))
	assert.NoError(t, CanRemove(entity.StatusCancelledByDP))
	assert.ErrorIs(t, CanRemove(entity.StatusPlaced), ErrNotRemovable)
	assert.ErrorIs(t, CanRemove(entity.StatusOutForDelivery), ErrNotRemovable)
	assert.ErrorIs(t, CanRemove("???"), ErrNotRemovable)
}

func markers(p Progress) [4]Marker {
	var out [4]Marker
	for i, s := range p.Stages {
		out[i] = s.Marker
	}
	return out
}
