// Package sqlite persists candidates and executed trades in a local SQLite
// file using the pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	"github.com/fd1az/arbitrage-scanner/business/execution/domain"
	"github.com/fd1az/arbitrage-scanner/internal/apperror"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
)

// Decimals are stored as TEXT so values round-trip exactly; times are unix
// nanoseconds.
const schema = `
CREATE TABLE IF NOT EXISTS candidates (
    id                 TEXT PRIMARY KEY,
    strategy           TEXT    NOT NULL,
    symbol             TEXT    NOT NULL,
    buy_venue          TEXT    NOT NULL,
    buy_price          TEXT    NOT NULL,
    sell_venue         TEXT    NOT NULL,
    sell_price         TEXT    NOT NULL,
    volume             TEXT    NOT NULL,
    gross_profit       TEXT    NOT NULL,
    profit_pct         TEXT    NOT NULL,
    fee                TEXT    NOT NULL,
    network_cost       TEXT    NOT NULL,
    net_profit         TEXT    NOT NULL,
    risk_level         INTEGER NOT NULL DEFAULT 0,
    confidence         REAL    NOT NULL DEFAULT 0,
    liquidity_score    REAL    NOT NULL DEFAULT 0,
    estimated_duration INTEGER NOT NULL DEFAULT 0,
    cross_chain        INTEGER NOT NULL DEFAULT 0,
    legs               TEXT,
    created_at         INTEGER NOT NULL,
    expires_at         INTEGER NOT NULL,
    status             TEXT    NOT NULL,
    reason             TEXT    NOT NULL DEFAULT '',
    updated_at         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS executed_trades (
    id              TEXT PRIMARY KEY,
    candidate_id    TEXT    NOT NULL UNIQUE,
    strategy        TEXT    NOT NULL,
    symbol          TEXT    NOT NULL,
    side            TEXT    NOT NULL,
    buy_venue       TEXT    NOT NULL,
    sell_venue      TEXT    NOT NULL,
    amount_traded   TEXT    NOT NULL,
    position_size   TEXT    NOT NULL,
    expected_profit TEXT    NOT NULL,
    profit_realized TEXT    NOT NULL,
    status          TEXT    NOT NULL,
    external_ref    TEXT    NOT NULL DEFAULT '',
    error           TEXT    NOT NULL DEFAULT '',
    started_at      INTEGER NOT NULL,
    completed_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_candidates_status ON candidates(status, expires_at);
CREATE INDEX IF NOT EXISTS idx_trades_completed  ON executed_trades(completed_at);
`

// Store implements the execution store on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: open %q: %w", path, err)
	}
	// single writer; also keeps one shared :memory: database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) SaveCandidate(ctx context.Context, c *detection.Candidate) error {
	legs, err := json.Marshal(c.Legs)
	if err != nil {
		return fmt.Errorf("sqlite.SaveCandidate: encode legs: %w", err)
	}
	status := c.Status
	if status == "" {
		status = detection.StatusDiscovered
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO candidates
			(id, strategy, symbol, buy_venue, buy_price, sell_venue, sell_price, volume,
			 gross_profit, profit_pct, fee, network_cost, net_profit, risk_level, confidence,
			 liquidity_score, estimated_duration, cross_chain, legs, created_at, expires_at,
			 status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		c.ID, c.Strategy.String(), c.Symbol.String(),
		c.BuyVenue, c.BuyPrice.String(), c.SellVenue, c.SellPrice.String(), c.Volume.String(),
		c.GrossProfit.String(), c.ProfitPct.String(), c.Fee.String(), c.NetworkCost.String(), c.NetProfit.String(),
		c.RiskLevel, c.Confidence, c.LiquidityScore, int64(c.EstimatedDuration), boolInt(c.CrossChain), string(legs),
		nanos(c.CreatedAt), nanos(c.ExpiresAt), string(status), nanos(s.now()),
	)
	if err != nil {
		return fmt.Errorf("sqlite.SaveCandidate %s: %w", c.ID, err)
	}
	return nil
}

func (s *Store) UpdateCandidateStatus(ctx context.Context, id string, status detection.Status, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE candidates SET status = ?, reason = ?, updated_at = ? WHERE id = ?`,
		string(status), reason, nanos(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite.UpdateCandidateStatus %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.New(apperror.CodeNotFound, apperror.WithContext("candidate "+id))
	}
	return nil
}

func (s *Store) SaveExecutedTrade(ctx context.Context, t *domain.ExecutedTrade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executed_trades
			(id, candidate_id, strategy, symbol, side, buy_venue, sell_venue, amount_traded,
			 position_size, expected_profit, profit_realized, status, external_ref, error,
			 started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.CandidateID, t.Strategy.String(), t.Symbol.String(), string(t.Side),
		t.BuyVenue, t.SellVenue, t.AmountTraded.String(), t.PositionSize.String(),
		t.ExpectedProfit.String(), t.ProfitRealized.String(), string(t.Status),
		t.ExternalRef, t.Error, nanos(t.StartedAt), nanos(t.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite.SaveExecutedTrade %s: %w", t.CandidateID, err)
	}
	return nil
}

func (s *Store) LoadRecentTrades(ctx context.Context, since time.Time) ([]domain.ExecutedTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, candidate_id, strategy, symbol, side, buy_venue, sell_venue, amount_traded,
		       position_size, expected_profit, profit_realized, status, external_ref, error,
		       started_at, completed_at
		FROM executed_trades
		WHERE completed_at >= ?
		ORDER BY completed_at ASC, id ASC`, nanos(since))
	if err != nil {
		return nil, fmt.Errorf("sqlite.LoadRecentTrades: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutedTrade
	for rows.Next() {
		var (
			t                                domain.ExecutedTrade
			strategy, symbol, side, status   string
			amount, size, expected, realized string
			started, completed               int64
		)
		if err := rows.Scan(&t.ID, &t.CandidateID, &strategy, &symbol, &side, &t.BuyVenue, &t.SellVenue,
			&amount, &size, &expected, &realized, &status, &t.ExternalRef, &t.Error,
			&started, &completed); err != nil {
			return nil, fmt.Errorf("sqlite.LoadRecentTrades: scan: %w", err)
		}

		var d decoder
		t.Strategy = d.strategy(strategy)
		t.Symbol = d.symbol(symbol)
		t.AmountTraded = d.decimal(amount)
		t.PositionSize = d.decimal(size)
		t.ExpectedProfit = d.decimal(expected)
		t.ProfitRealized = d.decimal(realized)
		if d.err != nil {
			return nil, fmt.Errorf("sqlite.LoadRecentTrades %s: %w", t.ID, d.err)
		}
		t.Side = detection.Side(side)
		t.Status = detection.Status(status)
		t.StartedAt = fromNanos(started)
		t.CompletedAt = fromNanos(completed)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ExpireCandidates(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE candidates SET status = ?, reason = ?, updated_at = ?
		WHERE status IN (?, ?) AND expires_at > 0 AND expires_at <= ?`,
		string(detection.StatusExpired), domain.ReasonExpired, nanos(now),
		string(detection.StatusDiscovered), string(detection.StatusAdmitted), nanos(now),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite.ExpireCandidates: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// LoadCandidate reads one candidate back with its last status reason.
func (s *Store) LoadCandidate(ctx context.Context, id string) (detection.Candidate, string, error) {
	var (
		c                                             detection.Candidate
		strategy, symbol, status, reason              string
		buy, sell, volume, gross, pct, fee, cost, net string
		duration, created, expires                    int64
		crossChain                                    int
		legs                                          sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, symbol, buy_venue, buy_price, sell_venue, sell_price, volume,
		       gross_profit, profit_pct, fee, network_cost, net_profit, risk_level, confidence,
		       liquidity_score, estimated_duration, cross_chain, legs, created_at, expires_at,
		       status, reason
		FROM candidates WHERE id = ?`, id).Scan(
		&c.ID, &strategy, &symbol, &c.BuyVenue, &buy, &c.SellVenue, &sell, &volume,
		&gross, &pct, &fee, &cost, &net, &c.RiskLevel, &c.Confidence,
		&c.LiquidityScore, &duration, &crossChain, &legs, &created, &expires,
		&status, &reason,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return c, "", apperror.New(apperror.CodeNotFound, apperror.WithContext("candidate "+id))
	}
	if err != nil {
		return c, "", fmt.Errorf("sqlite.LoadCandidate %s: %w", id, err)
	}

	var d decoder
	c.Strategy = d.strategy(strategy)
	c.Symbol = d.symbol(symbol)
	c.BuyPrice = d.decimal(buy)
	c.SellPrice = d.decimal(sell)
	c.Volume = d.decimal(volume)
	c.GrossProfit = d.decimal(gross)
	c.ProfitPct = d.decimal(pct)
	c.Fee = d.decimal(fee)
	c.NetworkCost = d.decimal(cost)
	c.NetProfit = d.decimal(net)
	if legs.Valid && legs.String != "null" && d.err == nil {
		d.err = json.Unmarshal([]byte(legs.String), &c.Legs)
	}
	if d.err != nil {
		return c, "", fmt.Errorf("sqlite.LoadCandidate %s: %w", id, d.err)
	}
	c.EstimatedDuration = time.Duration(duration)
	c.CrossChain = crossChain != 0
	c.CreatedAt = fromNanos(created)
	c.ExpiresAt = fromNanos(expires)
	c.Status = detection.Status(status)
	return c, reason, nil
}

func (s *Store) Close() error { return s.db.Close() }

// decoder keeps the first parse error so row mapping reads straight.
type decoder struct{ err error }

func (d *decoder) decimal(s string) decimal.Decimal {
	if d.err != nil {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	d.err = err
	return v
}

func (d *decoder) symbol(s string) instrument.Symbol {
	if d.err != nil {
		return instrument.Symbol{}
	}
	v, err := instrument.Parse(s)
	d.err = err
	return v
}

func (d *decoder) strategy(s string) detection.Strategy {
	if d.err != nil {
		return 0
	}
	v, err := detection.ParseStrategy(s)
	d.err = err
	return v
}

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
