package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"BarSync/internal/domain/models"
	pkgch "BarSync/pkg/clickhouse"
	applogger "BarSync/pkg/logger"
)

const chColumns = "symbol, period_end, open, high, low, close, adjusted_close, volume, `group`"

// CHBarStore implements BarStore on a ReplacingMergeTree keyed by
// (symbol, period_end). Reads use FINAL so each key resolves to its last write.
type CHBarStore struct {
	db    *sql.DB
	table string
	view  string
	l     *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client, table string, l *applogger.Logger) (*CHBarStore, error) {
	if table == "" {
		table = "bars"
	}
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CHBarStore{db: ch.DB(), table: table, view: table + "_monthly_change", l: l}, nil
}

func chTableDDL(name, engine string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	symbol String,
	period_end Date,
	open Decimal(20, 6),
	high Decimal(20, 6),
	low Decimal(20, 6),
	close Decimal(20, 6),
	adjusted_close Nullable(Decimal(20, 6)),
	volume Nullable(Int64),
	`+"`group`"+` String,
	updated_at DateTime64(3) DEFAULT now64(3)
) %s`, name, engine)
}

// chViewDDL renders the month-over-month change view over the deduplicated table.
func chViewDDL(view, table string) string {
	return fmt.Sprintf(`CREATE VIEW IF NOT EXISTS %s AS
SELECT symbol, `+"`group`"+`, period_end, close,
	lagInFrame(toNullable(close)) OVER w AS prev_close,
	close - prev_close AS change_amount,
	toFloat64(close - prev_close) * 100 / nullIf(toFloat64(prev_close), 0) AS change_pct
FROM %s FINAL
WINDOW w AS (PARTITION BY symbol ORDER BY period_end ROWS BETWEEN UNBOUNDED PRECEDING AND UNBOUNDED FOLLOWING)`, view, table)
}

func chMergeQuery(table, stage string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", table, chColumns, chColumns, stage)
}

func (s *CHBarStore) InitSchema(ctx context.Context) error {
	stmts := []string{
		chTableDDL(s.table, "ENGINE = ReplacingMergeTree(updated_at) ORDER BY (symbol, period_end)"),
		chViewDDL(s.view, s.table),
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("%w: %w", models.ErrSchemaSetup, err)
		}
	}
	s.l.Info("clickhouse schema ready", applogger.String("table", s.table))
	return nil
}

// Upsert loads bars into a Memory-engine stage table, then appends them to the
// main table; ReplacingMergeTree collapses duplicates on merge.
func (s *CHBarStore) Upsert(ctx context.Context, symbol, group string, bars []models.Bar) (err error) {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()
	stage := stageName(symbol)

	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, derr := s.db.ExecContext(cctx, "DROP TABLE IF EXISTS "+stage); derr != nil {
			s.l.Warn("drop stage table failed", applogger.String("stage", stage), applogger.Error(derr))
		}
		if err != nil {
			err = fmt.Errorf("%w: upsert %s: %w", models.ErrPersistence, symbol, err)
			s.l.Error("clickhouse upsert failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}()

	if _, err := s.db.ExecContext(ctx, chTableDDL(stage, "ENGINE = Memory")); err != nil {
		return fmt.Errorf("create stage: %w", err)
	}

	// clickhouse-go batches rows appended through a prepared INSERT inside a tx
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s)", stage, chColumns))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, b := range bars {
		var adj *decimal.Decimal
		if b.AdjClose.Valid {
			v := b.AdjClose.Decimal
			adj = &v
		}
		if _, err := stmt.ExecContext(ctx, symbol, b.PeriodEnd, b.Open, b.High, b.Low, b.Close, adj, b.Volume, group); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, chMergeQuery(s.table, stage)); err != nil {
		return fmt.Errorf("merge: %w", err)
	}

	s.l.Debug("clickhouse upsert ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(bars)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *CHBarStore) LastPeriodEnd(ctx context.Context, symbol string) (time.Time, bool, error) {
	var (
		last time.Time
		n    uint64
	)
	q := fmt.Sprintf("SELECT max(period_end), count() FROM %s FINAL WHERE symbol = ?", s.table)
	if err := s.db.QueryRowContext(ctx, q, symbol).Scan(&last, &n); err != nil {
		return time.Time{}, false, fmt.Errorf("last period %s: %w", symbol, err)
	}
	if n == 0 {
		return time.Time{}, false, nil
	}
	return last.UTC(), true, nil
}

func (s *CHBarStore) ListSeries(ctx context.Context) ([]models.Series, error) {
	q := fmt.Sprintf("SELECT DISTINCT symbol, `group` FROM %s FINAL ORDER BY `group`, symbol", s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	defer rows.Close()

	var out []models.Series
	for rows.Next() {
		var ser models.Series
		if err := rows.Scan(&ser.Symbol, &ser.Group); err != nil {
			return nil, fmt.Errorf("scan series: %w", err)
		}
		out = append(out, ser)
	}
	return out, rows.Err()
}

func (s *CHBarStore) LatestBar(ctx context.Context, symbol string) (*models.Bar, error) {
	bars, err := s.Bars(ctx, symbol, 1)
	if err != nil || len(bars) == 0 {
		return nil, err
	}
	return &bars[0], nil
}

// Bars reads decimals as strings; the driver hands back its own decimal type
// which database/sql cannot assign to a Scanner.
func (s *CHBarStore) Bars(ctx context.Context, symbol string, limit int) ([]models.Bar, error) {
	q := fmt.Sprintf(`SELECT period_end, toString(open), toString(high), toString(low), toString(close),
	toString(adjusted_close), volume
FROM %s FINAL WHERE symbol = ? ORDER BY period_end DESC LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("bars %s: %w", symbol, err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, limit)
	for rows.Next() {
		var (
			b   = models.Bar{Symbol: symbol}
			vol sql.NullInt64
		)
		if err := rows.Scan(&b.PeriodEnd, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &vol); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.PeriodEnd = b.PeriodEnd.UTC()
		if vol.Valid {
			v := vol.Int64
			b.Volume = &v
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *CHBarStore) MonthlyChanges(ctx context.Context, symbol string, limit int) ([]models.MonthlyChange, error) {
	q := fmt.Sprintf(`SELECT symbol, `+"`group`"+`, period_end, toString(close), toString(prev_close),
	toString(change_amount), toString(round(change_pct, 4))
FROM %s WHERE symbol = ? ORDER BY period_end DESC LIMIT ?`, s.view)
	rows, err := s.db.QueryContext(ctx, q, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("monthly changes %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []models.MonthlyChange
	for rows.Next() {
		var c models.MonthlyChange
		if err := rows.Scan(&c.Symbol, &c.Group, &c.PeriodEnd, &c.Close, &c.PrevClose, &c.ChangeAmount, &c.ChangePct); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		c.PeriodEnd = c.PeriodEnd.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *CHBarStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pkg client owns the pool.
func (s *CHBarStore) Close() error { return nil }
