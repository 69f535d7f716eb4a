package sim

import (
	"latsim/internal/engine"
	"latsim/pkg/model"
)

// OrderIntent is a strategy's wish to trade. It becomes a real order via
// Submit, which means it pays latency like everything else.
type OrderIntent struct {
	Side     model.Side
	Price    model.Price
	Quantity model.Quantity
	Route    model.Route
}

// Strategy reacts to exogenous market updates. It sees the book only
// through the engine's read accessors and may not mutate it directly.
type Strategy interface {
	ID() string
	OnMarketUpdate(now model.Time, book engine.OrderBookEngine) []OrderIntent
}

// SpreadStrategy is a naive market maker: the first time the spread is
// at least MinSpread ticks it joins both sides one tick inside the
// touch. It quotes a single episode; re-quoting after a fill would need
// its own inventory tracking.
type SpreadStrategy struct {
	Name      string
	MinSpread model.Price
	Size      model.Quantity
	Route     model.Route

	quoted bool
}

func (s *SpreadStrategy) ID() string { return s.Name }

func (s *SpreadStrategy) OnMarketUpdate(now model.Time, book engine.OrderBookEngine) []OrderIntent {
	if s.quoted {
		return nil
	}
	tob := book.GetTopOfBook()
	if tob.BestBid == nil || tob.BestAsk == nil || tob.Spread < s.MinSpread {
		return nil
	}
	s.quoted = true
	return []OrderIntent{
		{Side: model.BID, Price: tob.BestBid.Price + 1, Quantity: s.Size, Route: s.Route},
		{Side: model.ASK, Price: tob.BestAsk.Price - 1, Quantity: s.Size, Route: s.Route},
	}
}

// TriggerStrategy fires a single order the first time the best bid
// reaches a trigger price.
type TriggerStrategy struct {
	Name     string
	Trigger  model.Price
	Intent   OrderIntent
	hasFired bool
}

func (t *TriggerStrategy) ID() string { return t.Name }

func (t *TriggerStrategy) OnMarketUpdate(now model.Time, book engine.OrderBookEngine) []OrderIntent {
	if t.hasFired {
		return nil
	}
	tob := book.GetTopOfBook()
	if tob.BestBid == nil || tob.BestBid.Price < t.Trigger {
		return nil
	}
	t.hasFired = true
	return []OrderIntent{t.Intent}
}
