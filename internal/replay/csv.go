package replay

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"latsim/pkg/model"
)

// exogenous order ids start well above anything a strategy run assigns
const firstFeedOrderID = 1_000_000

// CSVFeed streams historical tick data row by row, so large files never
// need to fit in memory.
//
// Expected columns: timestamp,type,side,price,qty with a header row.
// Timestamps are microseconds of virtual time; type is ADD, CANCEL or
// TRADE; price is decimal and is converted to ticks on the way in.
type CSVFeed struct {
	f         *os.File
	r         *csv.Reader
	priceTick float64
	lastTime  model.Time
	nextID    model.OrderID
	started   bool
}

func NewCSVFeed(path string, priceTick float64) (*CSVFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed: %w", err)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	return &CSVFeed{f: f, r: r, priceTick: priceTick, nextID: firstFeedOrderID}, nil
}

func (c *CSVFeed) Close() error {
	return c.f.Close()
}

func (c *CSVFeed) Next() (*model.MarketEvent, error) {
	for {
		row, err := c.r.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("read feed row: %w", err)
		}

		if !c.started {
			c.started = true
			if looksLikeHeader(row) {
				continue
			}
		}

		ev, err := c.parseRow(row)
		if err != nil {
			return nil, err
		}
		if ev.Time < c.lastTime {
			return nil, fmt.Errorf("%w: %d after %d", ErrOutOfOrder, ev.Time, c.lastTime)
		}
		c.lastTime = ev.Time
		return ev, nil
	}
}

func (c *CSVFeed) parseRow(row []string) (*model.MarketEvent, error) {
	if len(row) < 5 {
		return nil, fmt.Errorf("feed row needs 5 fields, got %d: %v", len(row), row)
	}

	usec, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("feed timestamp %q: %w", row[0], err)
	}

	var kind model.TickKind
	switch strings.ToUpper(row[1]) {
	case "ADD":
		kind = model.TICK_ADD
	case "CANCEL":
		kind = model.TICK_CANCEL
	case "TRADE":
		kind = model.TICK_TRADE
	default:
		return nil, fmt.Errorf("feed event type %q unknown", row[1])
	}

	var side model.Side
	switch strings.ToLower(row[2]) {
	case "buy", "bid":
		side = model.BID
	case "sell", "ask":
		side = model.ASK
	default:
		return nil, fmt.Errorf("feed side %q unknown", row[2])
	}

	px, err := strconv.ParseFloat(row[3], 64)
	if err != nil {
		return nil, fmt.Errorf("feed price %q: %w", row[3], err)
	}
	if px <= 0 {
		return nil, fmt.Errorf("feed price %q must be positive", row[3])
	}

	qty, err := strconv.ParseInt(row[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("feed qty %q: %w", row[4], err)
	}
	if qty <= 0 {
		return nil, fmt.Errorf("feed qty %q must be positive", row[4])
	}

	ev := &model.MarketEvent{
		Time:     model.Time(usec * 1000), // file is in microseconds
		Kind:     kind,
		Side:     side,
		Price:    model.PriceFromFloat(px, c.priceTick),
		Quantity: model.Quantity(qty),
	}

	// Optional sixth column carries an explicit order id; ADD rows
	// without one get a feed-assigned id.
	if len(row) >= 6 && row[5] != "" {
		id, err := strconv.ParseUint(row[5], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("feed order id %q: %w", row[5], err)
		}
		ev.RefID = model.OrderID(id)
	} else if kind == model.TICK_ADD {
		c.nextID++
		ev.RefID = c.nextID
	}

	return ev, nil
}

func looksLikeHeader(row []string) bool {
	if len(row) == 0 {
		return false
	}
	_, err := strconv.ParseInt(row[0], 10, 64)
	return err != nil
}
