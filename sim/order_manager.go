package sim

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// OrderStats summarises the order book.
type OrderStats struct {
	TotalOrders      int     `json:"total_orders"`
	Delivered        int     `json:"delivered"`
	Failed           int     `json:"failed"`
	Outstanding      int     `json:"outstanding"`
	SuccessRate      float64 `json:"success_rate"` // percent of all orders
	AvgDeliveryTicks float64 `json:"avg_delivery_ticks"`
	AvgTotalTicks    float64 `json:"avg_total_ticks"`
}

// OrderManager tracks every order through preparation and delivery.
//
// The kitchen prepares at most maxPreparing orders at once (0 = unlimited); the rest
// wait in Pending, first come first served. Ready orders are handed to robots in
// submission order, each exactly once.
type OrderManager struct {
	mu           sync.Mutex
	maxPreparing int
	orders       map[string]*Order
	all          []*Order // submission order
	pending      OrderQueue
	preparing    []*Order
	ready        OrderQueue
	handedOut    map[string]string // order ID -> robot ID
	nextSeq      uint64
}

// NewOrderManager creates an empty order book.
func NewOrderManager(maxPreparing int) *OrderManager {
	if maxPreparing < 0 {
		maxPreparing = 0
	}
	return &OrderManager{
		maxPreparing: maxPreparing,
		orders:       make(map[string]*Order),
		handedOut:    make(map[string]string),
	}
}

// Submit adds a Pending order to the kitchen queue at tick now.
func (m *OrderManager) Submit(o *Order, now int64) error {
	if o == nil {
		return fmt.Errorf("submit: nil order")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[o.ID]; exists {
		return fmt.Errorf("submit %q: %w", o.ID, ErrDuplicateOrder)
	}
	if o.Status != OrderPending {
		return fmt.Errorf("submit %q: order must be %s, got %s", o.ID, OrderPending, o.Status)
	}
	m.nextSeq++
	o.seq = m.nextSeq
	o.ArrivalTick = now
	m.orders[o.ID] = o
	m.all = append(m.all, o)
	m.pending.Enqueue(o)
	logrus.Infof("[tick %07d] order %s submitted for table %s (prep %d)", now, o.ID, o.TableID, o.PrepDuration)
	return nil
}

// Tick starts preparing pending orders while the kitchen has room, then moves every
// order whose preparation time has elapsed to Ready.
func (m *OrderManager) Tick(now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.pending.Len() > 0 && (m.maxPreparing == 0 || len(m.preparing) < m.maxPreparing) {
		o := m.pending.Dequeue()
		if err := o.transition(OrderPreparing); err != nil {
			return err
		}
		o.PrepStartTick = now
		m.preparing = append(m.preparing, o)
		logrus.Debugf("[tick %07d] order %s preparing", now, o.ID)
	}

	remaining := m.preparing[:0]
	for _, o := range m.preparing {
		if now-o.PrepStartTick < o.PrepDuration {
			remaining = append(remaining, o)
			continue
		}
		if err := o.transition(OrderReady); err != nil {
			return err
		}
		o.ReadyTick = now
		m.ready.InsertOrdered(o)
		logrus.Debugf("[tick %07d] order %s ready", now, o.ID)
	}
	for i := len(remaining); i < len(m.preparing); i++ {
		m.preparing[i] = nil
	}
	m.preparing = remaining
	return nil
}

// NextReady hands the earliest-submitted Ready order to robotID and marks it
// InDelivery in the same critical section. Returns nil when nothing is ready.
func (m *OrderManager) NextReady(robotID string, now int64) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.ready.Dequeue()
	if o == nil {
		return nil, nil
	}
	if prev, claimed := m.handedOut[o.ID]; claimed {
		return nil, newInvariantViolation("order %s already claimed by robot %s", o.ID, prev)
	}
	if err := o.transition(OrderInDelivery); err != nil {
		return nil, err
	}
	m.handedOut[o.ID] = robotID
	o.RobotID = robotID
	o.DeliveryStartTick = now
	logrus.Infof("[tick %07d] order %s claimed by robot %s", now, o.ID, robotID)
	return o, nil
}

// Complete marks an InDelivery order Delivered.
func (m *OrderManager) Complete(orderID string, now int64) error {
	return m.finish(orderID, now, OrderDelivered, "")
}

// Fail marks an InDelivery order Failed with a terminal reason.
func (m *OrderManager) Fail(orderID string, now int64, reason string) error {
	return m.finish(orderID, now, OrderFailed, reason)
}

func (m *OrderManager) finish(orderID string, now int64, status OrderStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return newInvariantViolation("finish: unknown order %s", orderID)
	}
	if err := o.transition(status); err != nil {
		return err
	}
	o.DeliveryEndTick = now
	o.FailureReason = reason
	logrus.Infof("[tick %07d] order %s %s %s", now, o.ID, status, reason)
	return nil
}

// Get returns the order with the given ID.
func (m *OrderManager) Get(orderID string) (*Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	return o, ok
}

// Orders returns all orders in submission order.
func (m *OrderManager) Orders() []*Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Order(nil), m.all...)
}

// Outstanding counts orders that are not yet terminal.
func (m *OrderManager) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.all {
		if !o.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// ReadyCount returns the number of orders waiting for a robot.
func (m *OrderManager) ReadyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready.Len()
}

// Stats computes order-level aggregates.
func (m *OrderManager) Stats() OrderStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := OrderStats{TotalOrders: len(m.all)}
	var deliverySum, totalSum int64
	for _, o := range m.all {
		switch o.Status {
		case OrderDelivered:
			st.Delivered++
			deliverySum += o.DeliveryTicks()
			totalSum += o.TotalTicks()
		case OrderFailed:
			st.Failed++
		default:
			st.Outstanding++
		}
	}
	if st.TotalOrders > 0 {
		st.SuccessRate = float64(st.Delivered) / float64(st.TotalOrders) * 100
	}
	if st.Delivered > 0 {
		st.AvgDeliveryTicks = float64(deliverySum) / float64(st.Delivered)
		st.AvgTotalTicks = float64(totalSum) / float64(st.Delivered)
	}
	return st
}
