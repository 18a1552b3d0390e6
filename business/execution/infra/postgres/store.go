// Package postgres persists candidates and executed trades in PostgreSQL
// via pgx.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	"github.com/fd1az/arbitrage-scanner/business/execution/domain"
	"github.com/fd1az/arbitrage-scanner/internal/apperror"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements the execution store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Connect opens a pool for dsn, pings it and applies pending migrations.
func Connect(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{pool: pool, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// migrate applies embedded migrations in name order, recording each in
// schema_migrations.
func (s *Store) migrate(ctx context.Context) error {
	const tracker = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`
	if _, err := s.pool.Exec(ctx, tracker); err != nil {
		return fmt.Errorf("postgres: create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		var applied bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)", e.Name(),
		).Scan(&applied); err != nil {
			return fmt.Errorf("postgres: check migration %s: %w", e.Name(), err)
		}
		if applied {
			continue
		}

		sql, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return fmt.Errorf("postgres: read migration %s: %w", e.Name(), err)
		}
		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sql)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", e.Name())
			return err
		})
		if err != nil {
			return fmt.Errorf("postgres: apply migration %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (s *Store) SaveCandidate(ctx context.Context, c *detection.Candidate) error {
	legs, err := json.Marshal(c.Legs)
	if err != nil {
		return fmt.Errorf("postgres: encode legs %s: %w", c.ID, err)
	}
	status := c.Status
	if status == "" {
		status = detection.StatusDiscovered
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO candidates (
			id, strategy, symbol, buy_venue, buy_price, sell_venue, sell_price, volume,
			gross_profit, profit_pct, fee, network_cost, net_profit, risk_level, confidence,
			liquidity_score, estimated_duration, cross_chain, legs, created_at, expires_at,
			status, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21,
			$22, $23
		) ON CONFLICT (id) DO NOTHING`,
		c.ID, c.Strategy.String(), c.Symbol.String(), c.BuyVenue, c.BuyPrice, c.SellVenue, c.SellPrice, c.Volume,
		c.GrossProfit, c.ProfitPct, c.Fee, c.NetworkCost, c.NetProfit, c.RiskLevel, c.Confidence,
		c.LiquidityScore, int64(c.EstimatedDuration), c.CrossChain, legs, c.CreatedAt, nullTime(c.ExpiresAt),
		string(status), s.now(),
	)
	if err != nil {
		return fmt.Errorf("postgres: save candidate %s: %w", c.ID, err)
	}
	return nil
}

func (s *Store) UpdateCandidateStatus(ctx context.Context, id string, status detection.Status, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE candidates SET status = $1, reason = $2, updated_at = $3 WHERE id = $4`,
		string(status), reason, s.now(), id)
	if err != nil {
		return fmt.Errorf("postgres: update candidate %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.New(apperror.CodeNotFound, apperror.WithContext("candidate "+id))
	}
	return nil
}

func (s *Store) SaveExecutedTrade(ctx context.Context, t *domain.ExecutedTrade) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO executed_trades (
			id, candidate_id, strategy, symbol, side, buy_venue, sell_venue, amount_traded,
			position_size, expected_profit, profit_realized, status, external_ref, error,
			started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		t.ID, t.CandidateID, t.Strategy.String(), t.Symbol.String(), string(t.Side), t.BuyVenue, t.SellVenue,
		t.AmountTraded, t.PositionSize, t.ExpectedProfit, t.ProfitRealized, string(t.Status),
		t.ExternalRef, t.Error, t.StartedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save trade %s: %w", t.CandidateID, err)
	}
	return nil
}

func (s *Store) LoadRecentTrades(ctx context.Context, since time.Time) ([]domain.ExecutedTrade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, candidate_id, strategy, symbol, side, buy_venue, sell_venue, amount_traded,
		       position_size, expected_profit, profit_realized, status, external_ref, error,
		       started_at, completed_at
		FROM executed_trades
		WHERE completed_at >= $1
		ORDER BY completed_at ASC, id ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: load recent trades: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutedTrade
	for rows.Next() {
		var (
			t                              domain.ExecutedTrade
			strategy, symbol, side, status string
		)
		if err := rows.Scan(&t.ID, &t.CandidateID, &strategy, &symbol, &side, &t.BuyVenue, &t.SellVenue,
			&t.AmountTraded, &t.PositionSize, &t.ExpectedProfit, &t.ProfitRealized, &status,
			&t.ExternalRef, &t.Error, &t.StartedAt, &t.CompletedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		if t.Strategy, err = detection.ParseStrategy(strategy); err != nil {
			return nil, fmt.Errorf("postgres: trade %s: %w", t.ID, err)
		}
		if t.Symbol, err = instrument.Parse(symbol); err != nil {
			return nil, fmt.Errorf("postgres: trade %s: %w", t.ID, err)
		}
		t.Side = detection.Side(side)
		t.Status = detection.Status(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ExpireCandidates(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE candidates SET status = $1, reason = $2, updated_at = $3
		WHERE status IN ($4, $5) AND expires_at IS NOT NULL AND expires_at <= $3`,
		string(detection.StatusExpired), domain.ReasonExpired, now,
		string(detection.StatusDiscovered), string(detection.StatusAdmitted))
	if err != nil {
		return 0, fmt.Errorf("postgres: expire candidates: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// LoadCandidate reads one candidate back with its last status reason.
func (s *Store) LoadCandidate(ctx context.Context, id string) (detection.Candidate, string, error) {
	var (
		c                                detection.Candidate
		strategy, symbol, status, reason string
		duration                         int64
		legs                             []byte
		expires                          *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, strategy, symbol, buy_venue, buy_price, sell_venue, sell_price, volume,
		       gross_profit, profit_pct, fee, network_cost, net_profit, risk_level, confidence,
		       liquidity_score, estimated_duration, cross_chain, legs, created_at, expires_at,
		       status, reason
		FROM candidates WHERE id = $1`, id).Scan(
		&c.ID, &strategy, &symbol, &c.BuyVenue, &c.BuyPrice, &c.SellVenue, &c.SellPrice, &c.Volume,
		&c.GrossProfit, &c.ProfitPct, &c.Fee, &c.NetworkCost, &c.NetProfit, &c.RiskLevel, &c.Confidence,
		&c.LiquidityScore, &duration, &c.CrossChain, &legs, &c.CreatedAt, &expires,
		&status, &reason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, "", apperror.New(apperror.CodeNotFound, apperror.WithContext("candidate "+id))
	}
	if err != nil {
		return c, "", fmt.Errorf("postgres: load candidate %s: %w", id, err)
	}
	if c.Strategy, err = detection.ParseStrategy(strategy); err != nil {
		return c, "", err
	}
	if c.Symbol, err = instrument.Parse(symbol); err != nil {
		return c, "", err
	}
	if len(legs) > 0 {
		if err := json.Unmarshal(legs, &c.Legs); err != nil {
			return c, "", fmt.Errorf("postgres: decode legs %s: %w", id, err)
		}
	}
	if expires != nil {
		c.ExpiresAt = *expires
	}
	c.EstimatedDuration = time.Duration(duration)
	c.Status = detection.Status(status)
	return c, reason, nil
}

// TotalProfit sums realized profit across all confirmed trades.
func (s *Store) TotalProfit(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := s.pool.QueryRow(ctx,
		`SELECT SUM(profit_realized) FROM executed_trades WHERE status = $1`,
		string(detection.StatusConfirmed)).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: total profit: %w", err)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
