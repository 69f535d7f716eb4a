package sim

import (
	"testing"

	"latsim/internal/engine"
	"latsim/internal/latency"
	"latsim/internal/replay"
	"latsim/pkg/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noteRecorder is an Originator that keeps every notification in order.
type noteRecorder struct {
	name  string
	notes []model.Note
}

func (r *noteRecorder) ID() string             { return r.name }
func (r *noteRecorder) OnNote(note model.Note) { r.notes = append(r.notes, note) }

func testLatency(t *testing.T, seed int64) *latency.Model {
	t.Helper()
	m, err := latency.NewModel(seed, map[model.Route]latency.RouteConfig{
		"colo":      {BaseMs: 0.5, Shape: 2.0, ScaleMs: 0.1, LossProb: 0},
		"wifi":      {BaseMs: 10.0, Shape: 2.0, ScaleMs: 5.0, LossProb: 0},
		"blackhole": {BaseMs: 1.0, Shape: 1.0, ScaleMs: 1.0, LossProb: 1},
	})
	require.NoError(t, err)
	return m
}

func quietLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestSim(t *testing.T, seed int64, feed replay.Feed) *Simulator {
	t.Helper()
	return NewSimulator(Config{}, engine.NewOrderBookEngine(), testLatency(t, seed), feed, quietLog())
}

// The colo buy rests before the wifi sell arrives; the sell then crosses
// and trades at the resting order's price.
func TestColoBeatsWifi(t *testing.T) {
	s := newTestSim(t, 42, nil)

	maker := &noteRecorder{name: "maker"}
	taker := &noteRecorder{name: "taker"}
	s.Register(maker)
	s.Register(taker)

	buyID, err := s.Submit("maker", model.BID, 101, 100, "colo")
	require.NoError(t, err)
	sellID, err := s.Submit("taker", model.ASK, 100, 60, "wifi")
	require.NoError(t, err)

	summary, err := s.Run()
	require.NoError(t, err)

	require.Equal(t, uint64(1), summary.Fills)
	fill := s.Fills()[0]
	assert.Equal(t, model.Price(101), fill.Price) // resting side's price
	assert.Equal(t, model.Quantity(60), fill.Quantity)
	assert.Equal(t, buyID, fill.BuyOrderID)
	assert.Equal(t, sellID, fill.SellOrderID)
	assert.Equal(t, model.BID, fill.Passive)

	// buyer: rest ack first, then the fill; 40 left with nothing ahead
	require.Len(t, maker.notes, 2)
	assert.Equal(t, model.NOTE_REST, maker.notes[0].Kind)
	assert.Equal(t, model.NOTE_FILL, maker.notes[1].Kind)

	resting, ok := s.Book().GetOrder(buyID)
	require.True(t, ok)
	assert.Equal(t, model.Quantity(40), resting.Remaining)
	ahead, err := s.Book().QuantityAhead(buyID)
	require.NoError(t, err)
	assert.Equal(t, model.Quantity(0), ahead)

	// seller fully filled, never rested
	require.Len(t, taker.notes, 1)
	assert.Equal(t, model.NOTE_FILL, taker.notes[0].Kind)
}

// Two identical orders on different routes: whoever draws the shorter
// delay for this seed owns the front of the queue. The expectation is
// derived from the latency model itself, not hard-coded.
func TestQueuePositionFollowsLatency(t *testing.T) {
	const seed = 7

	oracle := testLatency(t, seed)
	first, err := oracle.Resolve(1, "colo")
	require.NoError(t, err)
	second, err := oracle.Resolve(2, "wifi")
	require.NoError(t, err)
	require.NotEqual(t, first.Delay, second.Delay)

	s := newTestSim(t, seed, nil)
	idA, err := s.Submit("a", model.BID, 100, 25, "colo")
	require.NoError(t, err)
	idB, err := s.Submit("b", model.BID, 100, 25, "wifi")
	require.NoError(t, err)

	_, err = s.Run()
	require.NoError(t, err)

	winner, loser := idA, idB
	if second.Delay < first.Delay {
		winner, loser = idB, idA
	}

	aheadWinner, err := s.Book().QuantityAhead(winner)
	require.NoError(t, err)
	assert.Equal(t, model.Quantity(0), aheadWinner)

	aheadLoser, err := s.Book().QuantityAhead(loser)
	require.NoError(t, err)
	assert.Equal(t, model.Quantity(25), aheadLoser)
}

func TestLostOrderNotifiesOriginator(t *testing.T) {
	s := newTestSim(t, 42, nil)

	orig := &noteRecorder{name: "unlucky"}
	s.Register(orig)

	id, err := s.Submit("unlucky", model.BID, 100, 10, "blackhole")
	require.NoError(t, err)

	summary, err := s.Run()
	require.NoError(t, err)

	assert.Equal(t, uint64(1), summary.OrdersLost)
	assert.Equal(t, uint64(0), summary.Fills)
	require.Len(t, orig.notes, 1)
	assert.Equal(t, model.NOTE_LOST, orig.notes[0].Kind)
	assert.Equal(t, id, orig.notes[0].OrderID)

	// the order never reached the book
	_, ok := s.Book().GetOrder(id)
	assert.False(t, ok)
}

func TestCancelLifecycle(t *testing.T) {
	s := newTestSim(t, 42, nil)

	orig := &noteRecorder{name: "o"}
	s.Register(orig)

	id, err := s.Submit("o", model.BID, 100, 10, "colo")
	require.NoError(t, err)
	_, err = s.Run()
	require.NoError(t, err)

	// resting now; cancel goes down the same route and succeeds
	require.NoError(t, s.Cancel("o", id))
	summary, err := s.Run()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), summary.CancelsAccepted)

	last := orig.notes[len(orig.notes)-1]
	assert.Equal(t, model.NOTE_CANCEL_OK, last.Kind)
	assert.Equal(t, id, last.OrderID)

	// a second cancel races nothing: the order is already terminal
	require.NoError(t, s.Cancel("o", id))
	summary, err = s.Run()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), summary.CancelsRejected)

	last = orig.notes[len(orig.notes)-1]
	assert.Equal(t, model.NOTE_CANCEL_REJECT, last.Kind)
	assert.Equal(t, "already terminal", last.Reason)
}

func TestCancelRacedByFill(t *testing.T) {
	s := newTestSim(t, 42, nil)

	orig := &noteRecorder{name: "o"}
	s.Register(orig)

	id, err := s.Submit("o", model.BID, 100, 10, "colo")
	require.NoError(t, err)
	_, err = s.Run()
	require.NoError(t, err)

	// fill it completely before the cancel is issued
	_, err = s.Submit("o", model.ASK, 100, 10, "colo")
	require.NoError(t, err)
	_, err = s.Run()
	require.NoError(t, err)

	require.NoError(t, s.Cancel("o", id))
	summary, err := s.Run()
	require.NoError(t, err)

	assert.Equal(t, uint64(1), summary.CancelsRejected)
	last := orig.notes[len(orig.notes)-1]
	assert.Equal(t, model.NOTE_CANCEL_REJECT, last.Kind)
}

func TestCancelUnknownOrder(t *testing.T) {
	s := newTestSim(t, 42, nil)
	err := s.Cancel("o", 999)
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func feedEvents() []model.MarketEvent {
	return []model.MarketEvent{
		{Time: 1_000_000, Kind: model.TICK_ADD, Side: model.BID, Price: 9995, Quantity: 100, RefID: 9001},
		{Time: 1_010_000, Kind: model.TICK_ADD, Side: model.ASK, Price: 10005, Quantity: 50, RefID: 9002},
		{Time: 1_020_000, Kind: model.TICK_ADD, Side: model.BID, Price: 10000, Quantity: 20, RefID: 9003},
		{Time: 1_050_000, Kind: model.TICK_CANCEL, Side: model.BID, Price: 9995, Quantity: 100, RefID: 9001},
		{Time: 1_100_000, Kind: model.TICK_TRADE, Side: model.BID, Price: 10005, Quantity: 10},
	}
}

func TestFeedReplayDrivesBook(t *testing.T) {
	feed, err := replay.NewMemoryFeed(feedEvents()...)
	require.NoError(t, err)

	s := newTestSim(t, 42, feed)
	summary, err := s.Run()
	require.NoError(t, err)

	assert.Equal(t, uint64(5), summary.FeedEvents)
	// the TRADE replays as an aggressive buy and hits the 10005 ask
	require.Equal(t, uint64(1), summary.Fills)
	fill := s.Fills()[0]
	assert.Equal(t, model.Price(10005), fill.Price)
	assert.Equal(t, model.Quantity(10), fill.Quantity)

	tob := s.Book().GetTopOfBook()
	require.NotNil(t, tob.BestBid)
	require.NotNil(t, tob.BestAsk)
	// the 9995 bid was cancelled; best bid is the 10000 add
	assert.Equal(t, model.Price(10000), tob.BestBid.Price)
	assert.Equal(t, model.Quantity(40), tob.BestAsk.Volume)
}

func TestStrategyReactsToFeed(t *testing.T) {
	feed, err := replay.NewMemoryFeed(feedEvents()...)
	require.NoError(t, err)

	s := newTestSim(t, 42, feed)
	strat := &TriggerStrategy{
		Name:    "sniper",
		Trigger: 10000,
		Intent: OrderIntent{
			Side:     model.BID,
			Price:    10005,
			Quantity: 10,
			Route:    "colo",
		},
	}
	s.AddStrategy(strat)

	recorder := &noteRecorder{name: "sniper"}
	s.Register(recorder)

	summary, err := s.Run()
	require.NoError(t, err)

	// one fill from the replayed trade, one from the strategy's order
	assert.Equal(t, uint64(2), summary.Fills)

	var stratFill bool
	for _, note := range recorder.notes {
		if note.Kind == model.NOTE_FILL {
			stratFill = true
			assert.Equal(t, model.Price(10005), note.Fill.Price)
			assert.Equal(t, model.Quantity(10), note.Fill.Quantity)
		}
	}
	assert.True(t, stratFill, "strategy order never filled")
}

func TestSpreadStrategyQuotesBothSides(t *testing.T) {
	feed, err := replay.NewMemoryFeed(feedEvents()...)
	require.NoError(t, err)

	s := newTestSim(t, 42, feed)
	s.AddStrategy(&SpreadStrategy{
		Name:      "mm",
		MinSpread: 5,
		Size:      5,
		Route:     "colo",
	})
	mm := &noteRecorder{name: "mm"}
	s.Register(mm)

	_, err = s.Run()
	require.NoError(t, err)

	// both quotes rested one tick inside the first wide spread (9995/10005)
	var rests int
	for _, note := range mm.notes {
		if note.Kind == model.NOTE_REST {
			rests++
		}
	}
	assert.Equal(t, 2, rests)

	depth := s.Book().GetMarketDepth(10)
	var sawBid, sawAsk bool
	for _, lvl := range depth.Bids {
		if lvl.Price == 9996 {
			sawBid = true
		}
	}
	for _, lvl := range depth.Asks {
		if lvl.Price == 10004 {
			sawAsk = true
		}
	}
	assert.True(t, sawBid, "maker bid missing from depth")
	assert.True(t, sawAsk, "maker ask missing from depth")
}

func TestHorizonTruncatesQuietly(t *testing.T) {
	feed, err := replay.NewMemoryFeed(feedEvents()...)
	require.NoError(t, err)

	s := NewSimulator(Config{Horizon: 1_015_000}, engine.NewOrderBookEngine(), testLatency(t, 42), feed, quietLog())
	summary, err := s.Run()
	require.NoError(t, err)

	// only the first two feed events fall inside the horizon
	assert.Equal(t, uint64(2), summary.FeedEvents)
	assert.Equal(t, uint64(2), summary.EventsDispatched)
}

func TestMaxEventsStopsRun(t *testing.T) {
	feed, err := replay.NewMemoryFeed(feedEvents()...)
	require.NoError(t, err)

	s := NewSimulator(Config{MaxEvents: 3}, engine.NewOrderBookEngine(), testLatency(t, 42), feed, quietLog())
	summary, err := s.Run()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), summary.EventsDispatched)
}

// runScenario exercises feed replay, strategy flow, loss and cancels in
// one run and returns everything observable.
func runScenario(t *testing.T, seed int64) ([]model.Fill, []model.Note, Summary) {
	t.Helper()

	feed, err := replay.NewMemoryFeed(feedEvents()...)
	require.NoError(t, err)

	s := newTestSim(t, seed, feed)
	orig := &noteRecorder{name: "player"}
	s.Register(orig)
	s.AddStrategy(&TriggerStrategy{
		Name:    "player",
		Trigger: 10000,
		Intent:  OrderIntent{Side: model.BID, Price: 10003, Quantity: 5, Route: "wifi"},
	})

	_, err = s.Submit("player", model.BID, 9990, 10, "colo")
	require.NoError(t, err)
	_, err = s.Submit("player", model.ASK, 10010, 10, "wifi")
	require.NoError(t, err)
	_, err = s.Submit("player", model.BID, 9980, 5, "blackhole")
	require.NoError(t, err)

	summary, err := s.Run()
	require.NoError(t, err)
	return s.Fills(), orig.notes, summary
}

// Same seed, same inputs: the fill tape and every notification must be
// identical run over run.
func TestDeterminism(t *testing.T) {
	fillsA, notesA, summaryA := runScenario(t, 42)
	fillsB, notesB, summaryB := runScenario(t, 42)

	require.Equal(t, fillsA, fillsB)
	require.Equal(t, notesA, notesB)
	require.Equal(t, summaryA, summaryB)
}

func TestDifferentSeedsDiverge(t *testing.T) {
	_, notesA, _ := runScenario(t, 42)
	_, notesB, _ := runScenario(t, 1337)

	// timings differ even if the high-level outcomes happen to match
	assert.NotEqual(t, notesA, notesB)
}
