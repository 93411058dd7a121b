package repository

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"BarSync/pkg/util"
)

// Dialect selects the SQL flavour of SQLBarStore and SQLUniverse.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

func quote(name string) string {
	return `"` + name + `"`
}

// rebind rewrites ? placeholders to $n for postgres.
func (d Dialect) rebind(q string) string {
	if d != DialectPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// dateArg renders a period date; sqlite keeps dates as ISO text.
func (d Dialect) dateArg(t time.Time) interface{} {
	t = util.Day(t)
	if d == DialectSQLite {
		return t.Format(util.DateLayout)
	}
	return t
}

// dateValue scans DATE columns from either driver (time.Time or ISO text).
type dateValue struct {
	t     time.Time
	valid bool
}

func (v *dateValue) Scan(src interface{}) error {
	switch x := src.(type) {
	case nil:
		v.valid = false
		return nil
	case time.Time:
		v.t, v.valid = util.Day(x), true
		return nil
	case string:
		return v.parse(x)
	case []byte:
		return v.parse(string(x))
	default:
		return fmt.Errorf("unsupported date type %T", src)
	}
}

func (v *dateValue) parse(s string) error {
	if len(s) >= len(util.DateLayout) {
		if t, err := time.Parse(util.DateLayout, s[:len(util.DateLayout)]); err == nil {
			v.t, v.valid = t, true
			return nil
		}
	}
	t, ok := util.ParseTime(s)
	if !ok {
		return fmt.Errorf("unparseable date %q", s)
	}
	v.t, v.valid = util.Day(t), true
	return nil
}
