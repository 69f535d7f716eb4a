package recorder

import (
	"context"
	"fmt"
	"os"
	"time"

	"latsim/pkg/model"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// --- Models corresponding to DB tables ---

type RunRecord struct {
	ID         string    `db:"id"`
	Seed       int64     `db:"seed"`
	Events     int64     `db:"events"`
	Fills      int64     `db:"fills"`
	Volume     int64     `db:"volume"`
	EndVTime   int64     `db:"end_vtime"`
	FinishedAt time.Time `db:"finished_at"`
}

type FillRecord struct {
	RunID       string `db:"run_id"`
	Seq         int    `db:"seq"`
	Price       int64  `db:"price"`
	Quantity    int64  `db:"quantity"`
	BuyOrderID  int64  `db:"buy_order_id"`
	SellOrderID int64  `db:"sell_order_id"`
	VTime       int64  `db:"vtime"`
	Passive     string `db:"passive"`
}

// RunStore persists a finished run and its fill tape.
type RunStore interface {
	SaveRun(ctx context.Context, run RunRecord, fills []model.Fill) error
	EnsureSchema(ctx context.Context) error
	Close() error
}

type runStoreImpl struct {
	db *sqlx.DB
}

// DSNFromEnv builds the Postgres DSN from DB_USER, DB_PASSWORD, DB_HOST,
// DB_PORT and DB_NAME.
func DSNFromEnv() string {
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
		os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"), os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"), os.Getenv("DB_NAME"),
	)
}

func NewRunStore(dsn string) (RunStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &runStoreImpl{db: db}, nil
}

func (r *runStoreImpl) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			seed        BIGINT NOT NULL,
			events      BIGINT NOT NULL,
			fills       BIGINT NOT NULL,
			volume      BIGINT NOT NULL,
			end_vtime   BIGINT NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS fills (
			run_id        TEXT NOT NULL REFERENCES runs(id),
			seq           INT NOT NULL,
			price         BIGINT NOT NULL,
			quantity      BIGINT NOT NULL,
			buy_order_id  BIGINT NOT NULL,
			sell_order_id BIGINT NOT NULL,
			vtime         BIGINT NOT NULL,
			passive       TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`)
	return err
}

func (r *runStoreImpl) SaveRun(ctx context.Context, run RunRecord, fills []model.Fill) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, seed, events, fills, volume, end_vtime, finished_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		run.ID, run.Seed, run.Events, run.Fills, run.Volume, run.EndVTime, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, f := range fills {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO fills (run_id, seq, price, quantity, buy_order_id, sell_order_id, vtime, passive)
             VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			run.ID, i, int64(f.Price), int64(f.Quantity),
			int64(f.BuyOrderID), int64(f.SellOrderID), int64(f.Time), f.Passive.String())
		if err != nil {
			return fmt.Errorf("insert fill %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func (r *runStoreImpl) Close() error {
	return r.db.Close()
}
