package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"BarSync/internal/domain/models"
	"BarSync/pkg/util"
)

// UniverseColumns names the columns of the identifier table.
type UniverseColumns struct {
	Group  string
	Symbol string
	Active string
}

// SQLUniverse reads identifiers from an externally maintained table.
type SQLUniverse struct {
	db      *sql.DB
	dialect Dialect
	query   string
}

func NewSQLUniverse(db *sql.DB, dialect Dialect, table string, cols UniverseColumns) (*SQLUniverse, error) {
	for _, name := range []string{table, cols.Group, cols.Symbol, cols.Active} {
		if err := checkIdent(name); err != nil {
			return nil, fmt.Errorf("universe: %w", err)
		}
	}
	q := fmt.Sprintf("SELECT %s, %s, %s FROM %s", quote(cols.Group), quote(cols.Symbol), quote(cols.Active), quote(table))
	return &SQLUniverse{db: db, dialect: dialect, query: q}, nil
}

// Identifiers returns every row; the active flag accepts 1/true/yes/y.
func (u *SQLUniverse) Identifiers(ctx context.Context) ([]models.Identifier, error) {
	rows, err := u.db.QueryContext(ctx, u.query)
	if err != nil {
		return nil, fmt.Errorf("query universe: %w", err)
	}
	defer rows.Close()

	var out []models.Identifier
	for rows.Next() {
		var group, symbol, active sql.NullString
		if err := rows.Scan(&group, &symbol, &active); err != nil {
			return nil, fmt.Errorf("scan universe: %w", err)
		}
		out = append(out, models.Identifier{
			Group:  strings.TrimSpace(group.String),
			Symbol: strings.TrimSpace(symbol.String),
			Active: util.ParseFlag(active.String),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read universe: %w", err)
	}
	return out, nil
}

func (u *SQLUniverse) Close() error {
	return u.db.Close()
}

// StaticUniverse serves a fixed identifier list.
type StaticUniverse []models.Identifier

func (s StaticUniverse) Identifiers(context.Context) ([]models.Identifier, error) {
	out := make([]models.Identifier, len(s))
	copy(out, s)
	return out, nil
}
