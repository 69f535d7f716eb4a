package model

// EventKind discriminates scheduler events.
type EventKind uint8

const (
	EVENT_ORDER_ARRIVAL EventKind = iota
	EVENT_CANCEL_REQUEST
	EVENT_EXOGENOUS_TICK
)

func (k EventKind) String() string {
	switch k {
	case EVENT_ORDER_ARRIVAL:
		return "order_arrival"
	case EVENT_CANCEL_REQUEST:
		return "cancel_request"
	case EVENT_EXOGENOUS_TICK:
		return "exogenous_tick"
	}
	return "unknown"
}

// Event is owned by the scheduler between enqueue and dispatch. Exactly
// one payload field is set depending on Kind.
type Event struct {
	Kind EventKind
	Time Time   // scheduled virtual time
	Seq  uint64 // monotonic tie-break, assigned at schedule time

	Order *Order // EVENT_ORDER_ARRIVAL

	CancelID     OrderID // EVENT_CANCEL_REQUEST
	CancelOrigin string

	Tick *MarketEvent // EVENT_EXOGENOUS_TICK
}

// TickKind discriminates exogenous market data records.
type TickKind uint8

const (
	TICK_ADD TickKind = iota
	TICK_CANCEL
	TICK_TRADE
)

func (k TickKind) String() string {
	switch k {
	case TICK_ADD:
		return "ADD"
	case TICK_CANCEL:
		return "CANCEL"
	case TICK_TRADE:
		return "TRADE"
	}
	return "UNKNOWN"
}

// MarketEvent is one exogenous book event from the replay feed. It is
// self-describing: side, price and quantity travel with the record.
type MarketEvent struct {
	Time     Time
	Kind     TickKind
	Side     Side
	Price    Price
	Quantity Quantity
	RefID    OrderID // book order id for ADD/CANCEL
}
