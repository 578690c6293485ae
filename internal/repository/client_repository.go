package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

const clientColumns = `id, user_id, name, email, phone, company, status, priority, tags, category,
	source, notes, last_contact_at, created_at, updated_at`

var clientSorts = map[string]string{
	"created_at":      "created_at",
	"updated_at":      "updated_at",
	"name":            "name",
	"status":          "status",
	"last_contact_at": "last_contact_at",
	"priority":        "CASE priority WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END",
}

type ClientRepository struct {
	db *pgxpool.Pool
}

var _ interfaces.ClientStore = (*ClientRepository)(nil)

func NewClientRepository(db *pgxpool.Pool) *ClientRepository {
	return &ClientRepository{db: db}
}

func scanClient(row scanner) (*entities.Client, error) {
	var c entities.Client
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Phone, &c.Company, &c.Status, &c.Priority,
		&c.Tags, &c.Category, &c.Source, &c.Notes, &c.LastContactAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return &c, nil
}

func (r *ClientRepository) Create(ctx context.Context, c *entities.Client) error {
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO clients (user_id, name, email, phone, company, status, priority, tags, category, source, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`,
		c.UserID, c.Name, c.Email, c.Phone, c.Company, c.Status, c.Priority, c.Tags, c.Category, c.Source, c.Notes,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *ClientRepository) GetByID(ctx context.Context, id int64) (*entities.Client, error) {
	c, err := scanClient(r.db.QueryRow(ctx, "SELECT "+clientColumns+" FROM clients WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err, "client")
	}
	return c, nil
}

func (r *ClientRepository) List(ctx context.Context, userID int64, f entities.ClientFilter) ([]entities.Client, int, error) {
	where := sq.And{sq.Eq{"user_id": userID}}
	if f.Status != "" {
		where = append(where, sq.Eq{"status": f.Status})
	}
	if f.Priority != "" {
		where = append(where, sq.Eq{"priority": f.Priority})
	}
	if f.Category != "" {
		where = append(where, sq.Eq{"category": f.Category})
	}
	if f.Source != "" {
		where = append(where, sq.Eq{"source": f.Source})
	}
	if f.Tag != "" {
		where = append(where, sq.Expr("? = ANY(tags)", f.Tag))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := likePattern(s)
		where = append(where, sq.Or{
			sq.Expr("name ILIKE ?", p),
			sq.Expr("email ILIKE ?", p),
			sq.Expr("company ILIKE ?", p),
			sq.Expr("phone ILIKE ?", p),
		})
	}

	total, err := count(ctx, r.db, "clients", where)
	if err != nil {
		return nil, 0, err
	}

	q := psql.Select(clientColumns).From("clients").Where(where).
		OrderBy(orderBy(f.Sort, f.Order, clientSorts, "created_at"))
	query, args, err := paginate(q, f.Page, f.Limit).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	clients := []entities.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		clients = append(clients, *c)
	}
	return clients, total, rows.Err()
}

func (r *ClientRepository) Update(ctx context.Context, c *entities.Client) error {
	if c.Tags == nil {
		c.Tags = []string{}
	}
	err := r.db.QueryRow(ctx, `
		UPDATE clients SET name = $1, email = $2, phone = $3, company = $4, status = $5, priority = $6,
			tags = $7, category = $8, source = $9, notes = $10, updated_at = NOW()
		WHERE id = $11
		RETURNING updated_at`,
		c.Name, c.Email, c.Phone, c.Company, c.Status, c.Priority, c.Tags, c.Category, c.Source, c.Notes, c.ID,
	).Scan(&c.UpdatedAt)
	return notFound(err, "client")
}

// Delete removes the client's follow-ups and interactions before the client itself.
func (r *ClientRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM follow_ups WHERE client_id = $1", id); err != nil {
		return fmt.Errorf("delete client follow-ups: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM interactions WHERE client_id = $1", id); err != nil {
		return fmt.Errorf("delete client interactions: %w", err)
	}
	tag, err := tx.Exec(ctx, "DELETE FROM clients WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entities.NotFound("client")
	}
	return tx.Commit(ctx)
}

func (r *ClientRepository) TouchLastContact(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE clients SET last_contact_at = $1
		WHERE id = $2 AND (last_contact_at IS NULL OR last_contact_at < $1)`, at, id)
	return err
}

func (r *ClientRepository) CountByUser(ctx context.Context, userID int64) (int, error) {
	return count(ctx, r.db, "clients", sq.Eq{"user_id": userID})
}
