package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"BarSync/internal/domain/models"
	applogger "BarSync/pkg/logger"
	"BarSync/pkg/util"
)

const stageChunkSize = 500

var barColumns = []string{"symbol", "period_end", "open", "high", "low", "close", "adjusted_close", "volume", `"group"`}

// SQLBarStore implements BarStore on postgres (pgx) or sqlite (modernc).
type SQLBarStore struct {
	db               *sql.DB
	dialect          Dialect
	table            string
	view             string
	statementTimeout time.Duration
	l                *applogger.Logger
}

type SQLStoreOption func(*SQLBarStore)

// WithTable overrides the bars table; the view is named <table>_monthly_change.
func WithTable(table string) SQLStoreOption {
	return func(s *SQLBarStore) {
		s.table = table
		s.view = table + "_monthly_change"
	}
}

func WithStatementTimeout(d time.Duration) SQLStoreOption {
	return func(s *SQLBarStore) { s.statementTimeout = d }
}

func WithStoreLogger(l *applogger.Logger) SQLStoreOption {
	return func(s *SQLBarStore) { s.l = l }
}

func NewSQLBarStore(db *sql.DB, dialect Dialect, opts ...SQLStoreOption) (*SQLBarStore, error) {
	s := &SQLBarStore{
		db:               db,
		dialect:          dialect,
		table:            "bars",
		view:             "bars_monthly_change",
		statementTimeout: 30 * time.Second,
		l:                applogger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if err := checkIdent(s.table); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLBarStore) stmtCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.statementTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.statementTimeout)
}

func (s *SQLBarStore) tableDDL(name string, withKey bool) string {
	cols := []string{
		"symbol TEXT NOT NULL",
		"period_end DATE NOT NULL",
		"open NUMERIC NOT NULL",
		"high NUMERIC NOT NULL",
		"low NUMERIC NOT NULL",
		"close NUMERIC NOT NULL",
		"adjusted_close NUMERIC",
		"volume BIGINT",
		`"group" TEXT NOT NULL DEFAULT ''`,
	}
	if withKey {
		cols = append(cols, "PRIMARY KEY (symbol, period_end)")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", quote(name), strings.Join(cols, ",\n\t"))
}

func (s *SQLBarStore) viewDDL() string {
	create := "CREATE OR REPLACE VIEW"
	if s.dialect == DialectSQLite {
		create = "CREATE VIEW IF NOT EXISTS"
	}
	return fmt.Sprintf(`%s %s AS
SELECT symbol, "group", period_end, close,
	LAG(close) OVER w AS prev_close,
	close - LAG(close) OVER w AS change_amount,
	(close - LAG(close) OVER w) * 100.0 / NULLIF(LAG(close) OVER w, 0) AS change_pct
FROM %s
WINDOW w AS (PARTITION BY symbol ORDER BY period_end)`, create, quote(s.view), quote(s.table))
}

// InitSchema creates the bars table and the monthly change view.
func (s *SQLBarStore) InitSchema(ctx context.Context) error {
	for _, q := range []string{s.tableDDL(s.table, true), s.viewDDL()} {
		sctx, cancel := s.stmtCtx(ctx)
		_, err := s.db.ExecContext(sctx, q)
		cancel()
		if err != nil {
			return fmt.Errorf("%w: %w", models.ErrSchemaSetup, err)
		}
	}
	s.l.Info("store schema ready", applogger.String("table", s.table), applogger.String("dialect", string(s.dialect)))
	return nil
}

// stageName is unique per call and safe as an unquoted identifier.
func stageName(symbol string) string {
	name := util.CanonicalName(symbol)
	if len(name) > 24 {
		name = name[:24]
	}
	return "stage_" + name + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Upsert writes bars through a per-call staging table and merges them on
// (symbol, period_end); existing rows are overwritten.
func (s *SQLBarStore) Upsert(ctx context.Context, symbol, group string, bars []models.Bar) (err error) {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()
	stage := stageName(symbol)

	defer func() {
		// runs after the transaction is finished; sqlite holds a single connection
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, derr := s.db.ExecContext(cctx, "DROP TABLE IF EXISTS "+quote(stage)); derr != nil {
			s.l.Warn("drop stage table failed", applogger.String("stage", stage), applogger.Error(derr))
		}
		if err != nil {
			err = fmt.Errorf("%w: upsert %s: %w", models.ErrPersistence, symbol, err)
			s.l.Error("upsert failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	exec := func(q string, args ...interface{}) error {
		sctx, cancel := s.stmtCtx(ctx)
		defer cancel()
		_, err := tx.ExecContext(sctx, s.dialect.rebind(q), args...)
		return err
	}

	if err := exec(s.tableDDL(stage, false)); err != nil {
		return fmt.Errorf("create stage: %w", err)
	}

	cols := strings.Join(barColumns, ", ")
	for lo := 0; lo < len(bars); lo += stageChunkSize {
		hi := lo + stageChunkSize
		if hi > len(bars) {
			hi = len(bars)
		}
		values := make([]string, 0, hi-lo)
		args := make([]interface{}, 0, (hi-lo)*len(barColumns))
		for _, b := range bars[lo:hi] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				symbol,
				s.dialect.dateArg(b.PeriodEnd),
				b.Open, b.High, b.Low, b.Close,
				b.AdjClose,
				volumeArg(b.Volume),
				group,
			)
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", quote(stage), cols, strings.Join(values, ", "))
		if err := exec(q, args...); err != nil {
			return fmt.Errorf("stage insert: %w", err)
		}
	}

	updates := make([]string, 0, len(barColumns)-2)
	for _, c := range barColumns[2:] {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	// WHERE true keeps sqlite from reading ON CONFLICT as a join constraint
	merge := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s WHERE true ON CONFLICT (symbol, period_end) DO UPDATE SET %s",
		quote(s.table), cols, cols, quote(stage), strings.Join(updates, ", "))
	if err := exec(merge); err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	if err := exec("DROP TABLE IF EXISTS " + quote(stage)); err != nil {
		return fmt.Errorf("drop stage: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.l.Debug("upsert ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(bars)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func volumeArg(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func (s *SQLBarStore) LastPeriodEnd(ctx context.Context, symbol string) (time.Time, bool, error) {
	sctx, cancel := s.stmtCtx(ctx)
	defer cancel()

	var last dateValue
	q := fmt.Sprintf("SELECT MAX(period_end) FROM %s WHERE symbol = ?", quote(s.table))
	if err := s.db.QueryRowContext(sctx, s.dialect.rebind(q), symbol).Scan(&last); err != nil {
		return time.Time{}, false, fmt.Errorf("last period %s: %w", symbol, err)
	}
	return last.t, last.valid, nil
}

func (s *SQLBarStore) ListSeries(ctx context.Context) ([]models.Series, error) {
	sctx, cancel := s.stmtCtx(ctx)
	defer cancel()

	q := fmt.Sprintf(`SELECT DISTINCT symbol, "group" FROM %s ORDER BY "group", symbol`, quote(s.table))
	rows, err := s.db.QueryContext(sctx, q)
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

func (s *SQLBarStore) LatestBar(ctx context.Context, symbol string) (*models.Bar, error) {
	bars, err := s.Bars(ctx, symbol, 1)
	if err != nil || len(bars) == 0 {
		return nil, err
	}
	return &bars[0], nil
}

// Bars returns up to limit bars, newest first.
func (s *SQLBarStore) Bars(ctx context.Context, symbol string, limit int) ([]models.Bar, error) {
	sctx, cancel := s.stmtCtx(ctx)
	defer cancel()

	q := fmt.Sprintf(`SELECT period_end, open, high, low, close, adjusted_close, volume
FROM %s WHERE symbol = ? ORDER BY period_end DESC LIMIT ?`, quote(s.table))
	rows, err := s.db.QueryContext(sctx, s.dialect.rebind(q), symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("bars %s: %w", symbol, err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, limit)
	for rows.Next() {
		var (
			b   = models.Bar{Symbol: symbol}
			pe  dateValue
			vol sql.NullInt64
		)
		if err := rows.Scan(&pe, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &vol); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.PeriodEnd = pe.t
		if vol.Valid {
			v := vol.Int64
			b.Volume = &v
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// MonthlyChanges reads the change view, newest first.
func (s *SQLBarStore) MonthlyChanges(ctx context.Context, symbol string, limit int) ([]models.MonthlyChange, error) {
	sctx, cancel := s.stmtCtx(ctx)
	defer cancel()

	q := fmt.Sprintf(`SELECT symbol, "group", period_end, close, prev_close, change_amount, change_pct
FROM %s WHERE symbol = ? ORDER BY period_end DESC LIMIT ?`, quote(s.view))
	rows, err := s.db.QueryContext(sctx, s.dialect.rebind(q), symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("monthly changes %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []models.MonthlyChange
	for rows.Next() {
		var (
			c  models.MonthlyChange
			pe dateValue
		)
		if err := rows.Scan(&c.Symbol, &c.Group, &pe, &c.Close, &c.PrevClose, &c.ChangeAmount, &c.ChangePct); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		c.PeriodEnd = pe.t
		if c.ChangePct.Valid {
			c.ChangePct.Decimal = c.ChangePct.Decimal.Round(4)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLBarStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLBarStore) Close() error {
	return s.db.Close()
}
