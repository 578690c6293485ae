package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tracker_suite/internal/entities"
)

// psql builds Postgres ($n) placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type scanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ querier = (*pgxpool.Pool)(nil)

// count runs SELECT COUNT(*) FROM table WHERE where.
func count(ctx context.Context, db querier, table string, where sq.Sqlizer) (int, error) {
	q := psql.Select("COUNT(*)").From(table)
	if where != nil {
		q = q.Where(where)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// orderBy returns a safe ORDER BY clause; sort must be one of allowed, else fallback is used.
func orderBy(sort, order string, allowed map[string]string, fallback string) string {
	col, ok := allowed[sort]
	if !ok {
		col = allowed[fallback]
	}
	dir := "DESC"
	if strings.EqualFold(order, "asc") {
		dir = "ASC"
	}
	return fmt.Sprintf("%s %s, id %s", col, dir, dir)
}

// paginate applies LIMIT/OFFSET.
func paginate(q sq.SelectBuilder, page, limit int) sq.SelectBuilder {
	page, limit = entities.NormalizePage(page, limit)
	return q.Limit(uint64(limit)).Offset(uint64(entities.Offset(page, limit)))
}

// notFound maps pgx.ErrNoRows to a domain not-found error.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return entities.NotFound(what)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(s)) + "%"
}
