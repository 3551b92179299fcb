package sim

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderManager_Lifecycle_PrepThenReady(t *testing.T) {
	// GIVEN an order with a 2-tick preparation
	m := NewOrderManager(0)
	o := NewOrder("o1", "T1", 2)
	require.NoError(t, m.Submit(o, 0))

	// WHEN the kitchen ticks
	require.NoError(t, m.Tick(0))
	assert.Equal(t, OrderPreparing, o.Status)
	require.NoError(t, m.Tick(1))
	assert.Equal(t, OrderPreparing, o.Status, "prep not yet elapsed at tick 1")
	require.NoError(t, m.Tick(2))

	// THEN it is ready once prep_duration has elapsed
	assert.Equal(t, OrderReady, o.Status)
	assert.Equal(t, int64(0), o.PrepStartTick)
	assert.Equal(t, int64(2), o.ReadyTick)
	assert.Equal(t, 1, m.ReadyCount())
}

func TestOrderManager_ZeroPrep_ReadySameTick(t *testing.T) {
	m := NewOrderManager(0)
	o := NewOrder("o1", "T1", 0)
	require.NoError(t, m.Submit(o, 5))
	require.NoError(t, m.Tick(5))
	assert.Equal(t, OrderReady, o.Status)
}

func TestOrderManager_NextReady_FIFOAndClaim(t *testing.T) {
	// GIVEN three orders where the last-submitted finishes preparing first
	m := NewOrderManager(0)
	slow := NewOrder("slow", "T1", 3)
	mid := NewOrder("mid", "T2", 1)
	fast := NewOrder("fast", "T3", 0)
	require.NoError(t, m.Submit(slow, 0))
	require.NoError(t, m.Submit(mid, 0))
	require.NoError(t, m.Submit(fast, 0))
	for tick := int64(0); tick <= 3; tick++ {
		require.NoError(t, m.Tick(tick))
	}

	// WHEN robots claim orders
	var got []string
	for {
		o, err := m.NextReady("r1", 3)
		require.NoError(t, err)
		if o == nil {
			break
		}
		got = append(got, o.ID)
		// THEN each order is marked InDelivery atomically with the hand-off
		assert.Equal(t, OrderInDelivery, o.Status)
		assert.Equal(t, "r1", o.RobotID)
		assert.Equal(t, int64(3), o.DeliveryStartTick)
	}

	// THEN they come out in arrival order
	assert.Equal(t, []string{"slow", "mid", "fast"}, got)
}

func TestOrderManager_NextReady_NeverReturnsOrderTwice(t *testing.T) {
	// GIVEN many ready orders and several concurrent claimants
	m := NewOrderManager(0)
	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, m.Submit(NewOrder(fmt.Sprintf("o%03d", i), "T1", 0), 0))
	}
	require.NoError(t, m.Tick(0))

	var mu sync.Mutex
	seen := make(map[string]string)
	var wg sync.WaitGroup
	for r := 0; r < 8; r++ {
		robot := fmt.Sprintf("r%d", r)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				o, err := m.NextReady(robot, 1)
				if err != nil {
					t.Errorf("NextReady: %v", err)
					return
				}
				if o == nil {
					return
				}
				mu.Lock()
				if prev, dup := seen[o.ID]; dup {
					t.Errorf("order %s handed to %s and %s", o.ID, prev, robot)
				}
				seen[o.ID] = robot
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// THEN every order was handed out exactly once
	assert.Len(t, seen, n)
	assert.Equal(t, 0, m.ReadyCount())
}

func TestOrderManager_KitchenCapacity(t *testing.T) {
	// GIVEN a kitchen that prepares one order at a time
	m := NewOrderManager(1)
	a := NewOrder("a", "T1", 2)
	b := NewOrder("b", "T1", 2)
	require.NoError(t, m.Submit(a, 0))
	require.NoError(t, m.Submit(b, 0))

	// WHEN the first tick runs
	require.NoError(t, m.Tick(0))

	// THEN only the first order is preparing; the second waits
	assert.Equal(t, OrderPreparing, a.Status)
	assert.Equal(t, OrderPending, b.Status)

	// WHEN the first finishes, the second starts on the next tick
	require.NoError(t, m.Tick(2))
	assert.Equal(t, OrderReady, a.Status)
	assert.Equal(t, OrderPending, b.Status, "slot frees after the start phase of this tick")
	require.NoError(t, m.Tick(3))
	assert.Equal(t, OrderPreparing, b.Status)
	assert.Equal(t, int64(3), b.PrepStartTick)
}

func TestOrderManager_Submit_Errors(t *testing.T) {
	m := NewOrderManager(0)
	require.NoError(t, m.Submit(NewOrder("o1", "T1", 0), 0))

	err := m.Submit(NewOrder("o1", "T2", 0), 1)
	assert.True(t, errors.Is(err, ErrDuplicateOrder))

	notPending := NewOrder("o2", "T1", 0)
	notPending.Status = OrderReady
	assert.Error(t, m.Submit(notPending, 1))

	assert.Error(t, m.Submit(nil, 1))
}

func TestOrderManager_CompleteAndFail(t *testing.T) {
	m := NewOrderManager(0)
	for _, id := range []string{"ok", "bad", "open"} {
		require.NoError(t, m.Submit(NewOrder(id, "T1", 0), 0))
	}
	require.NoError(t, m.Tick(0))
	_, err := m.NextReady("r1", 1)
	require.NoError(t, err)
	_, err = m.NextReady("r2", 1)
	require.NoError(t, err)

	require.NoError(t, m.Complete("ok", 5))
	require.NoError(t, m.Fail("bad", 4, ReasonReportUnreachable))

	ok, _ := m.Get("ok")
	bad, _ := m.Get("bad")
	assert.Equal(t, OrderDelivered, ok.Status)
	assert.Equal(t, OrderFailed, bad.Status)
	assert.Equal(t, ReasonReportUnreachable, bad.FailureReason)
	assert.Equal(t, 1, m.Outstanding())

	// Failing an order that is not InDelivery is a contract breach
	err = m.Fail("open", 6, "x")
	assert.True(t, IsInvariantViolation(err))
	assert.True(t, IsInvariantViolation(m.Complete("missing", 6)))

	st := m.Stats()
	assert.Equal(t, 3, st.TotalOrders)
	assert.Equal(t, 1, st.Delivered)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 1, st.Outstanding)
	assert.InDelta(t, 33.33, st.SuccessRate, 0.01)
	assert.InDelta(t, 4.0, st.AvgDeliveryTicks, 1e-9)
	assert.InDelta(t, 5.0, st.AvgTotalTicks, 1e-9)
}

func TestOrderManager_Orders_SubmissionOrder(t *testing.T) {
	m := NewOrderManager(0)
	require.NoError(t, m.Submit(NewOrder("b", "T1", 0), 0))
	require.NoError(t, m.Submit(NewOrder("a", "T1", 0), 0))
	orders := m.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, "b", orders[0].ID)
	assert.Equal(t, "a", orders[1].ID)
}
