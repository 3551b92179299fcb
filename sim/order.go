// Defines the Order struct that models a single table order in the simulation.
// Tracks the order's lifecycle status and the tick at which each phase started.

package sim

import "fmt"

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderPreparing  OrderStatus = "preparing"
	OrderReady      OrderStatus = "ready"
	OrderInDelivery OrderStatus = "in_delivery"
	OrderDelivered  OrderStatus = "delivered"
	OrderFailed     OrderStatus = "failed"
)

// validOrderTransitions lists the allowed next statuses. Failed is reachable from
// InDelivery only.
var validOrderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderPreparing},
	OrderPreparing:  {OrderReady},
	OrderReady:      {OrderInDelivery},
	OrderInDelivery: {OrderDelivered, OrderFailed},
}

// IsValidOrderTransition checks if a status transition is allowed.
func IsValidOrderTransition(from, to OrderStatus) bool {
	for _, s := range validOrderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for Delivered and Failed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderDelivered || s == OrderFailed
}

// Order is a single table order. Status is mutated only through OrderManager.
type Order struct {
	ID           string      // Unique identifier for the order
	TableID      string      // Label of the table to deliver to
	PrepDuration int64       // Kitchen preparation time (in ticks)
	Items        []string    // Free-form item names, carried for reporting only
	Status       OrderStatus // pending, preparing, ready, in_delivery, delivered, failed

	ArrivalTick       int64  // Tick at which the order enters the kitchen queue
	PrepStartTick     int64  // Tick when preparation started
	ReadyTick         int64  // Tick when preparation finished
	DeliveryStartTick int64  // Tick when a robot claimed the order
	DeliveryEndTick   int64  // Tick when the order became terminal
	RobotID           string // Robot that claimed the order (empty until claimed)
	FailureReason     string // Terminal reason when Status is Failed

	seq uint64 // submission order; FIFO key for dispatch
}

// NewOrder creates an order in the Pending state.
func NewOrder(id, tableID string, prepDuration int64) *Order {
	return &Order{
		ID:           id,
		TableID:      tableID,
		PrepDuration: prepDuration,
		Status:       OrderPending,
	}
}

// transition moves the order to next, rejecting transitions the lifecycle forbids.
func (o *Order) transition(next OrderStatus) error {
	if !IsValidOrderTransition(o.Status, next) {
		return newInvariantViolation("order %s: illegal transition %s -> %s", o.ID, o.Status, next)
	}
	o.Status = next
	return nil
}

// DeliveryTicks returns ticks from claim to terminal, or -1 while still open.
func (o *Order) DeliveryTicks() int64 {
	if !o.Status.IsTerminal() {
		return -1
	}
	return o.DeliveryEndTick - o.DeliveryStartTick
}

// TotalTicks returns ticks from arrival to terminal, or -1 while still open.
func (o *Order) TotalTicks() int64 {
	if !o.Status.IsTerminal() {
		return -1
	}
	return o.DeliveryEndTick - o.ArrivalTick
}

// This method returns a human-readable string representation of an Order.
func (o Order) String() string {
	return fmt.Sprintf("Order: (ID: %s, Table: %s, Status: %s, Robot: %q)", o.ID, o.TableID, o.Status, o.RobotID)
}
