// Package sqlxrepos implements the domain repositories on top of sqlx.
// Queries are written with `?` placeholders and portable SQL, then rebound for the driver in use
// (Postgres or SQLite).
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/geoffroyotegbeye/codesens/core"
)

func newID() string {
	return uuid.New().String()
}

// validID reports whether id could be a primary key; malformed IDs can never match a row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// trapNoRowsErr maps "no rows" errors to notFound.
func trapNoRowsErr(err, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// isUniqueViolation reports whether err comes from a UNIQUE or PRIMARY KEY constraint.
func isUniqueViolation(err error) bool {
	switch e := errors.Cause(err).(type) {
	case *pq.Error:
		return e.Code == "23505"
	case sqlite3.Error:
		return e.ExtendedCode == sqlite3.ErrConstraintUnique || e.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// checkAffected returns notFound when res reports no affected row.
func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reading affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// likePattern returns a case-insensitive LIKE pattern matching s anywhere; compare against LOWER(column).
func likePattern(s string) string {
	s = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(s))
	return "%" + s + "%"
}

// whereClause accumulates AND-ed conditions.
type whereClause struct {
	conds []string
	args  []interface{}
}

func (w *whereClause) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

// search matches the pattern against any of the columns.
func (w *whereClause) search(term string, columns ...string) {
	if term == "" {
		return
	}
	pattern := likePattern(term)
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		parts = append(parts, "LOWER("+col+`) LIKE ? ESCAPE '\'`)
		w.args = append(w.args, pattern)
	}
	w.conds = append(w.conds, "("+strings.Join(parts, " OR ")+")")
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// limit appends the LIMIT/OFFSET of page to a query and its args.
func limit(query string, args []interface{}, page core.Page) (string, []interface{}) {
	page.Clean()
	return query + " LIMIT ? OFFSET ?", append(args, page.Limit, page.Offset)
}

func get(ctx context.Context, ex core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	return ex.GetContext(ctx, dest, ex.Rebind(query), args...)
}

func sel(ctx context.Context, ex core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	return ex.SelectContext(ctx, dest, ex.Rebind(query), args...)
}

func exec(ctx context.Context, ex core.DBExecutor, query string, args ...interface{}) (sql.Result, error) {
	return ex.ExecContext(ctx, ex.Rebind(query), args...)
}

// in expands slice args (`IN (?)`) before rebinding.
func in(query string, args ...interface{}) (string, []interface{}, error) {
	q, a, err := sqlx.In(query, args...)
	return q, a, errors.Wrap(err, "expanding IN clause")
}

func count(ctx context.Context, ex core.DBExecutor, query string, args ...interface{}) (int, error) {
	var n int
	if err := get(ctx, ex, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}

// inTx runs fn in a transaction unless db is nil (already inside one), in which case fn gets ex.
func inTx(ctx context.Context, db core.DB, ex core.DBExecutor, fn func(ex core.DBExecutor) error) error {
	if db == nil {
		return fn(ex)
	}
	return core.WithTx(ctx, db, fn)
}

func joinOr(conds []string) string {
	return strings.Join(conds, " OR ")
}

func utcNull(t null.Time) null.Time {
	if !t.Valid {
		return null.Time{}
	}
	return null.TimeFrom(t.Time.UTC())
}
