package engine

import (
	"errors"
	"fmt"

	orderbookModel "latsim/internal/engine/model"
	"latsim/pkg/model"

	"github.com/google/btree"
)

var (
	// ErrOrderNotFound and ErrAlreadyTerminal are expected domain
	// outcomes: a cancel racing a fill is realistic, not a failure.
	ErrOrderNotFound   = errors.New("order not found")
	ErrAlreadyTerminal = errors.New("order already terminal")
	ErrDuplicateOrder  = errors.New("order id already seen")
	ErrNotResting      = errors.New("order is not resting")
)

// OrderBookEngine is the matching engine: a price-time-priority limit
// order book. It knows nothing about latency, scheduling or real time;
// arrival order is whatever the caller dispatches.
type OrderBookEngine interface {
	// ApplyArrival matches the incoming order against the book and rests
	// any remainder. Fills are priced at the resting side's limit.
	ApplyArrival(order *model.Order) ([]model.Fill, error)
	// ApplyCancel removes a resting order. ErrOrderNotFound and
	// ErrAlreadyTerminal are expected outcomes.
	ApplyCancel(orderID model.OrderID) (*model.Order, error)
	// QuantityAhead reports the resting quantity queued ahead of a
	// resting order at its price level. Non-increasing over time.
	QuantityAhead(orderID model.OrderID) (model.Quantity, error)
	GetOrder(orderID model.OrderID) (*model.Order, bool)
	GetTopOfBook() *model.TopOfBook
	GetMarketDepth(levels int) *model.MarketDepth
	OpenOrders() int
}

type OrderBookEngineImpl struct {
	bids, asks *btree.BTree                   // price-level trees
	orders     map[model.OrderID]*model.Order // resting orders by ID
	closed     map[model.OrderID]model.OrderStatus
}

func NewOrderBookEngine() OrderBookEngine {
	return &OrderBookEngineImpl{
		bids:   btree.New(32),
		asks:   btree.New(32),
		orders: make(map[model.OrderID]*model.Order),
		closed: make(map[model.OrderID]model.OrderStatus),
	}
}

func (o *OrderBookEngineImpl) bestBid() (*orderbookModel.BidPriceLevel, bool) {
	if o.bids.Len() == 0 {
		return nil, false
	}
	return o.bids.Min().(*orderbookModel.BidPriceLevel), true
}

func (o *OrderBookEngineImpl) bestAsk() (*orderbookModel.AskPriceLevel, bool) {
	if o.asks.Len() == 0 {
		return nil, false
	}
	return o.asks.Min().(*orderbookModel.AskPriceLevel), true
}

func (o *OrderBookEngineImpl) ApplyArrival(order *model.Order) ([]model.Fill, error) {
	if _, ok := o.orders[order.ID]; ok {
		return nil, fmt.Errorf("order %d: %w", order.ID, ErrDuplicateOrder)
	}
	if _, ok := o.closed[order.ID]; ok {
		return nil, fmt.Errorf("order %d: %w", order.ID, ErrDuplicateOrder)
	}

	fills := o.match(order)

	if order.Remaining > 0 {
		o.rest(order)
		order.Status = model.ORDER_RESTING
	} else {
		o.closed[order.ID] = model.ORDER_FILLED
	}

	o.assertUncrossed(order)
	return fills, nil
}

// match consumes opposite-side liquidity while the incoming order crosses:
// a buy crosses when price >= best ask, a sell when price <= best bid.
// Within a level the head order (oldest arrival) always trades first.
func (o *OrderBookEngineImpl) match(order *model.Order) []model.Fill {
	fills := make([]model.Fill, 0)

	for order.Remaining > 0 {
		var head *model.Order

		if order.Side == model.BID {
			ask, ok := o.bestAsk()
			if !ok || order.Price < ask.Price {
				break
			}
			head = ask.Orders[0]
		} else {
			bid, ok := o.bestBid()
			if !ok || order.Price > bid.Price {
				break
			}
			head = bid.Orders[0]
		}

		qty := min(order.Remaining, head.Remaining)
		if err := order.Fill(qty); err != nil {
			o.fatalf(order, "incoming fill: %v", err)
		}
		if err := head.Fill(qty); err != nil {
			o.fatalf(head, "resting fill: %v", err)
		}

		buyID, sellID := order.ID, head.ID
		if order.Side == model.ASK {
			buyID, sellID = head.ID, order.ID
		}
		fills = append(fills, model.Fill{
			Price:       head.Price, // resting side keeps the improvement
			Quantity:    qty,
			BuyOrderID:  buyID,
			SellOrderID: sellID,
			Time:        order.ArrivalTime,
			Passive:     head.Side,
		})

		// Shrink the level volume first: once the head is filled its
		// remaining quantity is zero and removal alone would not account
		// for the traded size.
		o.shrinkLevel(head.Side, head.Price, qty)

		if head.IsFilled() {
			delete(o.orders, head.ID)
			o.closed[head.ID] = model.ORDER_FILLED
			o.removeFromLevel(head.Side, head.Price, head.ID)
			o.dropIfEmpty(head.Side, head.Price)
		}
	}

	return fills
}

func (o *OrderBookEngineImpl) rest(order *model.Order) {
	switch order.Side {
	case model.ASK:
		probe := &orderbookModel.AskPriceLevel{Price: order.Price}
		item := o.asks.Get(probe)
		if item == nil {
			o.asks.ReplaceOrInsert(probe)
			item = probe
		}
		item.(*orderbookModel.AskPriceLevel).Append(order)

	case model.BID:
		probe := &orderbookModel.BidPriceLevel{Price: order.Price}
		item := o.bids.Get(probe)
		if item == nil {
			o.bids.ReplaceOrInsert(probe)
			item = probe
		}
		item.(*orderbookModel.BidPriceLevel).Append(order)
	}
	o.orders[order.ID] = order
}

func (o *OrderBookEngineImpl) ApplyCancel(orderID model.OrderID) (*model.Order, error) {
	if st, ok := o.closed[orderID]; ok {
		return nil, fmt.Errorf("order %d is %s: %w", orderID, st, ErrAlreadyTerminal)
	}
	order, ok := o.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
	}

	if order.Side == model.ASK {
		probe := &orderbookModel.AskPriceLevel{Price: order.Price}
		if item := o.asks.Get(probe); item != nil {
			item.(*orderbookModel.AskPriceLevel).RemoveOrderByID(orderID)
		}
	} else {
		probe := &orderbookModel.BidPriceLevel{Price: order.Price}
		if item := o.bids.Get(probe); item != nil {
			item.(*orderbookModel.BidPriceLevel).RemoveOrderByID(orderID)
		}
	}
	o.dropIfEmpty(order.Side, order.Price)

	delete(o.orders, orderID)
	order.Status = model.ORDER_CANCELLED
	o.closed[orderID] = model.ORDER_CANCELLED
	return order, nil
}

func (o *OrderBookEngineImpl) QuantityAhead(orderID model.OrderID) (model.Quantity, error) {
	order, ok := o.orders[orderID]
	if !ok {
		if _, terminal := o.closed[orderID]; terminal {
			return 0, fmt.Errorf("order %d: %w", orderID, ErrNotResting)
		}
		return 0, fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
	}

	if order.Side == model.ASK {
		probe := &orderbookModel.AskPriceLevel{Price: order.Price}
		if item := o.asks.Get(probe); item != nil {
			if ahead, ok := item.(*orderbookModel.AskPriceLevel).QuantityAhead(orderID); ok {
				return ahead, nil
			}
		}
	} else {
		probe := &orderbookModel.BidPriceLevel{Price: order.Price}
		if item := o.bids.Get(probe); item != nil {
			if ahead, ok := item.(*orderbookModel.BidPriceLevel).QuantityAhead(orderID); ok {
				return ahead, nil
			}
		}
	}
	o.fatalf(order, "resting order missing from its price level")
	return 0, nil
}

func (o *OrderBookEngineImpl) GetOrder(orderID model.OrderID) (*model.Order, bool) {
	order, ok := o.orders[orderID]
	return order, ok
}

func (o *OrderBookEngineImpl) OpenOrders() int {
	return len(o.orders)
}

func (o *OrderBookEngineImpl) dropIfEmpty(side model.Side, price model.Price) {
	if side == model.ASK {
		probe := &orderbookModel.AskPriceLevel{Price: price}
		if item := o.asks.Get(probe); item != nil && len(item.(*orderbookModel.AskPriceLevel).Orders) == 0 {
			o.asks.Delete(probe)
		}
	} else {
		probe := &orderbookModel.BidPriceLevel{Price: price}
		if item := o.bids.Get(probe); item != nil && len(item.(*orderbookModel.BidPriceLevel).Orders) == 0 {
			o.bids.Delete(probe)
		}
	}
}

func (o *OrderBookEngineImpl) removeFromLevel(side model.Side, price model.Price, orderID model.OrderID) {
	if side == model.ASK {
		probe := &orderbookModel.AskPriceLevel{Price: price}
		if item := o.asks.Get(probe); item != nil {
			item.(*orderbookModel.AskPriceLevel).RemoveOrderByID(orderID)
		}
	} else {
		probe := &orderbookModel.BidPriceLevel{Price: price}
		if item := o.bids.Get(probe); item != nil {
			item.(*orderbookModel.BidPriceLevel).RemoveOrderByID(orderID)
		}
	}
}

func (o *OrderBookEngineImpl) shrinkLevel(side model.Side, price model.Price, qty model.Quantity) {
	if side == model.ASK {
		probe := &orderbookModel.AskPriceLevel{Price: price}
		if item := o.asks.Get(probe); item != nil {
			item.(*orderbookModel.AskPriceLevel).TotalVolume -= qty
		}
	} else {
		probe := &orderbookModel.BidPriceLevel{Price: price}
		if item := o.bids.Get(probe); item != nil {
			item.(*orderbookModel.BidPriceLevel).TotalVolume -= qty
		}
	}
}

// assertUncrossed halts the run when the book survives an event in a
// crossed state. That is an engine bug, not a domain outcome, and it
// invalidates the determinism guarantees downstream.
func (o *OrderBookEngineImpl) assertUncrossed(last *model.Order) {
	bid, okBid := o.bestBid()
	ask, okAsk := o.bestAsk()
	if okBid && okAsk && bid.Price >= ask.Price {
		panic(fmt.Sprintf(
			"order book crossed after event: best bid %d >= best ask %d (last order %s)",
			bid.Price, ask.Price, last,
		))
	}
}

func (o *OrderBookEngineImpl) fatalf(order *model.Order, format string, args ...any) {
	panic(fmt.Sprintf("order book invariant violation (%s): %s", order, fmt.Sprintf(format, args...)))
}

func (o *OrderBookEngineImpl) GetMarketDepth(levels int) *model.MarketDepth {
	depth := &model.MarketDepth{
		Bids: make([]model.DepthLevel, 0, levels),
		Asks: make([]model.DepthLevel, 0, levels),
	}

	// Collect bid levels (highest price first)
	bidCount := 0
	o.bids.Ascend(func(item btree.Item) bool {
		if bidCount >= levels {
			return false // Stop iteration
		}

		bidLevel := item.(*orderbookModel.BidPriceLevel)
		depth.Bids = append(depth.Bids, model.DepthLevel{
			Price:      bidLevel.Price,
			Volume:     bidLevel.TotalVolume,
			OrderCount: len(bidLevel.Orders),
		})

		bidCount++
		return true // Continue iteration
	})

	// Collect ask levels (lowest price first)
	askCount := 0
	o.asks.Ascend(func(item btree.Item) bool {
		if askCount >= levels {
			return false
		}

		askLevel := item.(*orderbookModel.AskPriceLevel)
		depth.Asks = append(depth.Asks, model.DepthLevel{
			Price:      askLevel.Price,
			Volume:     askLevel.TotalVolume,
			OrderCount: len(askLevel.Orders),
		})

		askCount++
		return true
	})

	return depth
}

// GetTopOfBook returns best bid and ask
func (o *OrderBookEngineImpl) GetTopOfBook() *model.TopOfBook {
	tob := &model.TopOfBook{}

	if bid, ok := o.bestBid(); ok {
		tob.BestBid = &model.DepthLevel{
			Price:      bid.Price,
			Volume:     bid.TotalVolume,
			OrderCount: len(bid.Orders),
		}
	}

	if ask, ok := o.bestAsk(); ok {
		tob.BestAsk = &model.DepthLevel{
			Price:      ask.Price,
			Volume:     ask.TotalVolume,
			OrderCount: len(ask.Orders),
		}
	}

	if tob.BestBid != nil && tob.BestAsk != nil {
		tob.Spread = tob.BestAsk.Price - tob.BestBid.Price
	}

	return tob
}
