package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPrice    = errors.New("price must be greater than zero")
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	ErrOverfill        = errors.New("fill exceeds remaining quantity")
)

// Order is the mutable order record. The scheduler owns it while the
// arrival event is in flight; ownership transfers to the book at dispatch.
type Order struct {
	ID         OrderID
	Originator string
	Side       Side
	Price      Price
	Quantity   Quantity // original size
	Remaining  Quantity
	Route      Route
	SubmitTime Time

	// ArrivalTime is set once the latency model resolves delivery.
	ArrivalTime Time
	// ArrivalSeq is the scheduler sequence number of the arrival event.
	// FIFO position within a price level is decided by it, never by
	// SubmitTime: the book must not see information from before arrival.
	ArrivalSeq uint64

	Status OrderStatus
}

func NewOrder(id OrderID, originator string, side Side, price Price, qty Quantity, route Route, submit Time) (*Order, error) {
	if price <= 0 {
		return nil, ErrInvalidPrice
	}
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	return &Order{
		ID:         id,
		Originator: originator,
		Side:       side,
		Price:      price,
		Quantity:   qty,
		Remaining:  qty,
		Route:      route,
		SubmitTime: submit,
		Status:     ORDER_PENDING,
	}, nil
}

// Fill decrements the remaining quantity and advances status.
func (o *Order) Fill(qty Quantity) error {
	if qty > o.Remaining {
		return fmt.Errorf("order %d: %w", o.ID, ErrOverfill)
	}
	o.Remaining -= qty
	if o.Remaining == 0 {
		o.Status = ORDER_FILLED
	}
	return nil
}

func (o *Order) FilledQuantity() Quantity {
	return o.Quantity - o.Remaining
}

func (o *Order) IsFilled() bool {
	return o.Remaining == 0
}

func (o *Order) String() string {
	return fmt.Sprintf("[%d %s %s %d@%d rem:%d %s]",
		o.ID, o.Originator, o.Side, o.Quantity, o.Price, o.Remaining, o.Status)
}
