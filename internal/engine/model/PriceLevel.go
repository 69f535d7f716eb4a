package model

import (
	"latsim/pkg/model"

	"github.com/google/btree"
)

// AskPriceLevel ascending
type AskPriceLevel struct {
	Price       model.Price
	Orders      []*model.Order
	TotalVolume model.Quantity
}

func (pl *AskPriceLevel) Less(than btree.Item) bool {
	other := than.(*AskPriceLevel)
	return pl.Price < other.Price
}

// BidPriceLevel descending
type BidPriceLevel struct {
	Price       model.Price
	Orders      []*model.Order
	TotalVolume model.Quantity
}

func (pl *BidPriceLevel) Less(than btree.Item) bool {
	other := than.(*BidPriceLevel)
	return pl.Price > other.Price // Reverse
}

// Append enqueues a resting order at the tail of the level. Arrival order
// is the only priority inside a level.
func (pl *AskPriceLevel) Append(o *model.Order) {
	pl.Orders = append(pl.Orders, o)
	pl.TotalVolume += o.Remaining
}

func (pl *BidPriceLevel) Append(o *model.Order) {
	pl.Orders = append(pl.Orders, o)
	pl.TotalVolume += o.Remaining
}

func (pl *AskPriceLevel) RemoveOrderByID(orderID model.OrderID) bool {
	var ok bool
	pl.Orders, pl.TotalVolume, ok = removeByID(pl.Orders, pl.TotalVolume, orderID)
	return ok
}

func (pl *BidPriceLevel) RemoveOrderByID(orderID model.OrderID) bool {
	var ok bool
	pl.Orders, pl.TotalVolume, ok = removeByID(pl.Orders, pl.TotalVolume, orderID)
	return ok
}

// QuantityAhead returns the cumulative remaining quantity queued ahead of
// orderID at this level. Second result is false when the order is absent.
func (pl *AskPriceLevel) QuantityAhead(orderID model.OrderID) (model.Quantity, bool) {
	return quantityAhead(pl.Orders, orderID)
}

func (pl *BidPriceLevel) QuantityAhead(orderID model.OrderID) (model.Quantity, bool) {
	return quantityAhead(pl.Orders, orderID)
}

func removeByID(orders []*model.Order, vol model.Quantity, orderID model.OrderID) ([]*model.Order, model.Quantity, bool) {
	for i, order := range orders {
		if order.ID == orderID {
			vol -= order.Remaining
			return append(orders[:i], orders[i+1:]...), vol, true
		}
	}
	return orders, vol, false
}

func quantityAhead(orders []*model.Order, orderID model.OrderID) (model.Quantity, bool) {
	ahead := model.Quantity(0)
	for _, order := range orders {
		if order.ID == orderID {
			return ahead, true
		}
		ahead += order.Remaining
	}
	return 0, false
}
