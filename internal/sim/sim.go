// Package sim drives the discrete-event simulation: a single-threaded
// loop popping (time, seq)-ordered events and applying them to the book.
// Determinism is the point: one event finishes, including every fill it
// causes, before the next is considered.
package sim

import (
	"errors"
	"fmt"
	"io"

	"latsim/internal/engine"
	"latsim/internal/latency"
	"latsim/internal/replay"
	"latsim/pkg/model"

	"github.com/sirupsen/logrus"
)

var ErrUnknownOrder = errors.New("order was never submitted here")

// Originator receives asynchronous notifications for its own orders, at
// the virtual time the triggering event was processed.
type Originator interface {
	ID() string
	OnNote(note model.Note)
}

// Observer watches the global fill tape. Recorders and streaming hubs
// plug in here.
type Observer interface {
	OnFill(fill model.Fill)
}

// Config bounds a run. Zero values mean unbounded.
type Config struct {
	Horizon   model.Time // discard events scheduled past this time
	MaxEvents uint64     // stop after dispatching this many events
}

// Summary are the run totals.
type Summary struct {
	EventsDispatched uint64
	FeedEvents       uint64
	OrdersSubmitted  uint64
	OrdersLost       uint64
	Fills            uint64
	VolumeTraded     model.Quantity
	CancelsAccepted  uint64
	CancelsRejected  uint64
	EndTime          model.Time
}

type levelKey struct {
	side  model.Side
	price model.Price
}

type Simulator struct {
	cfg   Config
	sched *Scheduler
	book  engine.OrderBookEngine
	lat   *latency.Model
	feed  replay.Feed
	log   logrus.FieldLogger

	originators map[string]Originator
	strategies  []Strategy
	observers   []Observer

	nextOrderID model.OrderID
	nextExoID   model.OrderID
	routeOf     map[model.OrderID]model.Route
	originOf    map[model.OrderID]string

	// exogenous resting orders per level, for feed cancels that carry no
	// order id (historical feeds identify cancels by side+price)
	exoLevels map[levelKey][]model.OrderID

	fills    []model.Fill
	feedDone bool
	summary  Summary
}

func NewSimulator(cfg Config, book engine.OrderBookEngine, lat *latency.Model, feed replay.Feed, log logrus.FieldLogger) *Simulator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Simulator{
		cfg:         cfg,
		sched:       NewScheduler(),
		book:        book,
		lat:         lat,
		feed:        feed,
		log:         log,
		originators: make(map[string]Originator),
		routeOf:     make(map[model.OrderID]model.Route),
		originOf:    make(map[model.OrderID]string),
		exoLevels:   make(map[levelKey][]model.OrderID),
		nextExoID:   2_000_000, // clear of both strategy and feed id ranges
	}
}

func (s *Simulator) Register(o Originator) {
	s.originators[o.ID()] = o
}

func (s *Simulator) AddStrategy(st Strategy) {
	s.strategies = append(s.strategies, st)
}

func (s *Simulator) Observe(obs Observer) {
	s.observers = append(s.observers, obs)
}

func (s *Simulator) Now() model.Time              { return s.sched.Now() }
func (s *Simulator) Book() engine.OrderBookEngine { return s.book }
func (s *Simulator) Fills() []model.Fill          { return s.fills }

// Submit creates an order at the current virtual time and runs it through
// the latency model. A lost order never reaches the book; the originator
// hears about it via a Lost note. Loss is an expected outcome, not an
// error.
func (s *Simulator) Submit(originator string, side model.Side, price model.Price, qty model.Quantity, route model.Route) (model.OrderID, error) {
	s.nextOrderID++
	id := s.nextOrderID
	now := s.sched.Now()

	order, err := model.NewOrder(id, originator, side, price, qty, route, now)
	if err != nil {
		return 0, err
	}

	res, err := s.lat.Resolve(id, route)
	if err != nil {
		return 0, err
	}

	s.summary.OrdersSubmitted++
	s.routeOf[id] = route
	s.originOf[id] = originator

	if res.Lost {
		order.Status = model.ORDER_LOST
		s.summary.OrdersLost++
		s.notify(originator, model.Note{Kind: model.NOTE_LOST, Time: now, OrderID: id})
		s.log.WithFields(logrus.Fields{"order_id": id, "route": route}).Debug("order lost in transit")
		return id, nil
	}

	order.ArrivalTime = now + model.TimeFromDuration(res.Delay)
	ev := &model.Event{Kind: model.EVENT_ORDER_ARRIVAL, Order: order}
	if err := s.sched.Schedule(ev, order.ArrivalTime); err != nil {
		return 0, err
	}
	return id, nil
}

// Cancel sends a cancel request down the same route the order took. The
// request travels the wire too: it gets its own latency draw (from a
// fresh wire id, so the original order's draws stay untouched) and can
// itself be lost.
func (s *Simulator) Cancel(originator string, orderID model.OrderID) error {
	route, ok := s.routeOf[orderID]
	if !ok {
		return fmt.Errorf("cancel %d: %w", orderID, ErrUnknownOrder)
	}

	s.nextOrderID++
	wireID := s.nextOrderID
	now := s.sched.Now()

	res, err := s.lat.Resolve(wireID, route)
	if err != nil {
		return err
	}
	if res.Lost {
		s.notify(originator, model.Note{Kind: model.NOTE_LOST, Time: now, OrderID: orderID})
		s.log.WithFields(logrus.Fields{"order_id": orderID}).Debug("cancel lost in transit")
		return nil
	}

	ev := &model.Event{
		Kind:         model.EVENT_CANCEL_REQUEST,
		CancelID:     orderID,
		CancelOrigin: originator,
	}
	return s.sched.Schedule(ev, now+model.TimeFromDuration(res.Delay))
}

// Run drains the queue until it is empty or the configured horizon is
// reached. Events still queued past the horizon are discarded; that is
// normal truncation.
func (s *Simulator) Run() (Summary, error) {
	if err := s.pullFeed(); err != nil {
		return s.summary, err
	}

	for {
		next := s.sched.Peek()
		if next == nil {
			break
		}
		if s.cfg.Horizon > 0 && next.Time > s.cfg.Horizon {
			s.log.WithField("discarded", s.sched.Len()).Debug("horizon reached")
			break
		}
		if s.cfg.MaxEvents > 0 && s.sched.Dispatched() >= s.cfg.MaxEvents {
			break
		}

		ev := s.sched.Pop()
		if err := s.dispatch(ev); err != nil {
			return s.summary, err
		}
	}

	s.summary.EventsDispatched = s.sched.Dispatched()
	s.summary.EndTime = s.sched.Now()
	return s.summary, nil
}

func (s *Simulator) dispatch(ev *model.Event) error {
	switch ev.Kind {
	case model.EVENT_ORDER_ARRIVAL:
		return s.handleArrival(ev)
	case model.EVENT_CANCEL_REQUEST:
		s.handleCancel(ev)
		return nil
	case model.EVENT_EXOGENOUS_TICK:
		return s.handleTick(ev)
	}
	return fmt.Errorf("unknown event kind %d", ev.Kind)
}

func (s *Simulator) handleArrival(ev *model.Event) error {
	order := ev.Order
	order.ArrivalSeq = ev.Seq

	fills, err := s.book.ApplyArrival(order)
	if err != nil {
		return fmt.Errorf("arrival of order %d: %w", order.ID, err)
	}
	s.publishFills(fills)

	if order.Remaining > 0 {
		s.notify(order.Originator, model.Note{
			Kind:    model.NOTE_REST,
			Time:    ev.Time,
			OrderID: order.ID,
		})
	}
	return nil
}

func (s *Simulator) handleCancel(ev *model.Event) {
	_, err := s.book.ApplyCancel(ev.CancelID)
	note := model.Note{Time: ev.Time, OrderID: ev.CancelID}
	switch {
	case err == nil:
		note.Kind = model.NOTE_CANCEL_OK
		s.summary.CancelsAccepted++
	case errors.Is(err, engine.ErrAlreadyTerminal):
		// the cancel lost the race against a fill, an expected outcome
		note.Kind = model.NOTE_CANCEL_REJECT
		note.Reason = "already terminal"
		s.summary.CancelsRejected++
	case errors.Is(err, engine.ErrOrderNotFound):
		note.Kind = model.NOTE_CANCEL_REJECT
		note.Reason = "not found"
		s.summary.CancelsRejected++
	}
	s.notify(ev.CancelOrigin, note)
}

func (s *Simulator) handleTick(ev *model.Event) error {
	tick := ev.Tick
	s.summary.FeedEvents++

	switch tick.Kind {
	case model.TICK_ADD:
		if err := s.applyExoOrder(tick.RefID, tick, ev); err != nil {
			return err
		}

	case model.TICK_CANCEL:
		s.applyExoCancel(tick)

	case model.TICK_TRADE:
		// replay an already-executed trade as an aggressive order so the
		// book consumes the same liquidity the historical trade did
		s.nextExoID++
		if err := s.applyExoOrder(s.nextExoID, tick, ev); err != nil {
			return err
		}
	}

	if err := s.pullFeed(); err != nil {
		return err
	}

	s.runStrategies(ev.Time)
	return nil
}

func (s *Simulator) applyExoOrder(id model.OrderID, tick *model.MarketEvent, ev *model.Event) error {
	order, err := model.NewOrder(id, "", tick.Side, tick.Price, tick.Quantity, "", ev.Time)
	if err != nil {
		return fmt.Errorf("feed order %d: %w", id, err)
	}
	order.ArrivalTime = ev.Time
	order.ArrivalSeq = ev.Seq

	fills, err := s.book.ApplyArrival(order)
	if err != nil {
		return fmt.Errorf("feed order %d: %w", id, err)
	}
	s.publishFills(fills)

	if order.Remaining > 0 {
		key := levelKey{side: order.Side, price: order.Price}
		s.exoLevels[key] = append(s.exoLevels[key], id)
	}
	return nil
}

// applyExoCancel removes an exogenous resting order. Feeds that carry no
// order id identify the cancel by side and price; we drop the newest
// resting order at that level. Stale cancels are tolerated.
func (s *Simulator) applyExoCancel(tick *model.MarketEvent) {
	id := tick.RefID
	if id == 0 {
		id = s.popExoLevel(levelKey{side: tick.Side, price: tick.Price})
		if id == 0 {
			s.log.WithFields(logrus.Fields{"price": tick.Price, "side": tick.Side}).
				Debug("feed cancel with no matching resting order")
			return
		}
	}
	if _, err := s.book.ApplyCancel(id); err != nil {
		s.log.WithFields(logrus.Fields{"order_id": id}).Debug("stale feed cancel")
	}
}

func (s *Simulator) popExoLevel(key levelKey) model.OrderID {
	ids := s.exoLevels[key]
	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		s.exoLevels[key] = ids[:i]
		if _, ok := s.book.GetOrder(id); ok {
			return id
		}
	}
	delete(s.exoLevels, key)
	return 0
}

func (s *Simulator) pullFeed() error {
	if s.feed == nil || s.feedDone {
		return nil
	}
	tick, err := s.feed.Next()
	if err == io.EOF {
		// end of stream is a normal termination signal
		s.feedDone = true
		return nil
	}
	if err != nil {
		return err
	}
	ev := &model.Event{Kind: model.EVENT_EXOGENOUS_TICK, Tick: tick}
	return s.sched.Schedule(ev, tick.Time)
}

func (s *Simulator) runStrategies(now model.Time) {
	for _, st := range s.strategies {
		for _, intent := range st.OnMarketUpdate(now, s.book) {
			if _, err := s.Submit(st.ID(), intent.Side, intent.Price, intent.Quantity, intent.Route); err != nil {
				s.log.WithError(err).WithField("strategy", st.ID()).Warn("strategy submit rejected")
			}
		}
	}
}

func (s *Simulator) publishFills(fills []model.Fill) {
	for i := range fills {
		fill := fills[i]
		s.fills = append(s.fills, fill)
		s.summary.Fills++
		s.summary.VolumeTraded += fill.Quantity

		for _, obs := range s.observers {
			obs.OnFill(fill)
		}

		s.notifyFill(fill.BuyOrderID, fill)
		s.notifyFill(fill.SellOrderID, fill)
	}
}

func (s *Simulator) notifyFill(orderID model.OrderID, fill model.Fill) {
	origin, ok := s.originOf[orderID]
	if !ok || origin == "" {
		return
	}
	f := fill
	s.notify(origin, model.Note{
		Kind:    model.NOTE_FILL,
		Time:    fill.Time,
		OrderID: orderID,
		Fill:    &f,
		Qty:     fill.Quantity,
	})
}

func (s *Simulator) notify(origin string, note model.Note) {
	if origin == "" {
		return
	}
	if o, ok := s.originators[origin]; ok {
		o.OnNote(note)
	}
}
