package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect names accepted by Open.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

type dialect struct {
	name string
}

// rebind rewrites "?" placeholders into the driver's native form.
func (d dialect) rebind(query string) string {
	if d.name != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// lockSuffix is appended to the statement that pins the session row for the
// duration of a booking transaction. SQLite has no row locks; the store keeps a
// single connection and opens immediate transactions instead (see sqliteDSN).
func (d dialect) lockSuffix() string {
	if d.name == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// placeholders returns "?, ?, ?" with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// sqliteDSN adds the connection parameters the store relies on when the caller
// left them out: immediate write transactions and enforced foreign keys.
func sqliteDSN(dsn string) string {
	var params []string
	if !strings.Contains(dsn, "_txlock=") {
		params = append(params, "_txlock=immediate")
	}
	if !strings.Contains(dsn, "foreign_keys") {
		params = append(params, "_pragma=foreign_keys(1)")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}
