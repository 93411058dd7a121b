package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"BarSync/internal/domain/models"
	applogger "BarSync/pkg/logger"
	"BarSync/pkg/util"
)

// Writer renders run artifacts into one output directory. File names carry
// the YYYY.MM label of the period they report on.
type Writer struct {
	dir string
	l   *applogger.Logger
}

func NewWriter(dir string, l *applogger.Logger) *Writer {
	if l == nil {
		l = applogger.Nop()
	}
	return &Writer{dir: dir, l: l}
}

func (w *Writer) path(prefix string, period time.Time, ext string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%s.%s", prefix, util.PeriodLabel(period), ext))
}

// WriteManifest writes failed_<period>.csv and failed_<period>.json.
func (w *Writer) WriteManifest(m *models.Manifest, period time.Time) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	rows := [][]string{{"group", "symbol", "reason"}}
	for _, g := range m.Groups() {
		for _, e := range m.Entries(g) {
			rows = append(rows, []string{g, e.Symbol, e.Reason})
		}
	}
	csvPath := w.path("failed", period, "csv")
	if err := writeCSV(csvPath, rows); err != nil {
		return nil, err
	}

	jsonPath := w.path("failed", period, "json")
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(jsonPath, b, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", jsonPath, err)
	}

	w.l.Info("manifest written", applogger.String("csv", csvPath), applogger.Int("failed", m.Len()))
	return []string{csvPath, jsonPath}, nil
}

// WriteAudit writes the full table, the needs-attention subset, the group
// summary and, when present, the per-series detail rows.
func (w *Writer) WriteAudit(r *models.AuditReport, period time.Time) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	files := []struct {
		prefix string
		rows   [][]string
	}{
		{"audit", classificationRows(r.All)},
		{"audit_attention", classificationRows(r.NeedsAttention)},
		{"audit_summary", summaryRows(r.Summary)},
	}
	if len(r.Details) > 0 {
		files = append(files, struct {
			prefix string
			rows   [][]string
		}{"audit_detail", detailRows(r)})
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		p := w.path(f.prefix, period, "csv")
		if err := writeCSV(p, f.rows); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	w.l.Info("audit reports written", applogger.String("dir", w.dir), applogger.Int("files", len(paths)))
	return paths, nil
}

func classificationRows(cs []models.Classification) [][]string {
	rows := [][]string{{"group", "symbol", "last_date", "status", "detail"}}
	for _, c := range cs {
		last := ""
		if c.LastDate != nil {
			last = c.LastDate.Format(util.DateLayout)
		}
		rows = append(rows, []string{c.Group, c.Symbol, last, string(c.Status), c.Detail})
	}
	return rows
}

func summaryRows(gs []models.GroupSummary) [][]string {
	rows := [][]string{{"group", "expected", "threshold", "stored", "up_to_date", "passed"}}
	for _, g := range gs {
		passed := g.Expected == 0 || g.UpToDate >= g.Threshold
		rows = append(rows, []string{
			g.Group,
			strconv.Itoa(g.Expected),
			strconv.Itoa(g.Threshold),
			strconv.Itoa(g.Stored),
			strconv.Itoa(g.UpToDate),
			strconv.FormatBool(passed),
		})
	}
	return rows
}

// detailRows lists the kept bars of every series in NeedsAttention order;
// a truncated history ends with an "N+ Records" marker row.
func detailRows(r *models.AuditReport) [][]string {
	rows := [][]string{{"group", "symbol", "period_end", "open", "high", "low", "close", "adjusted_close", "volume"}}
	for _, c := range r.NeedsAttention {
		d, ok := r.Details[models.Series{Symbol: c.Symbol, Group: c.Group}]
		if !ok {
			continue
		}
		for _, b := range d.Bars {
			adj, vol := "", ""
			if b.AdjClose.Valid {
				adj = b.AdjClose.Decimal.String()
			}
			if b.Volume != nil {
				vol = strconv.FormatInt(*b.Volume, 10)
			}
			rows = append(rows, []string{
				c.Group, c.Symbol, b.PeriodEnd.Format(util.DateLayout),
				b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(),
				adj, vol,
			})
		}
		if d.Truncated {
			rows = append(rows, []string{c.Group, c.Symbol, fmt.Sprintf("%d+ Records", len(d.Bars))})
		}
	}
	return rows
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	cw := csv.NewWriter(f)
	// marker rows are shorter than the header
	if err := cw.WriteAll(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
