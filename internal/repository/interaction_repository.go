package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

const interactionColumns = "id, client_id, user_id, type, notes, occurred_at, created_at"

type InteractionRepository struct {
	db *pgxpool.Pool
}

var _ interfaces.InteractionStore = (*InteractionRepository)(nil)

func NewInteractionRepository(db *pgxpool.Pool) *InteractionRepository {
	return &InteractionRepository{db: db}
}

func scanInteraction(row scanner) (*entities.Interaction, error) {
	var i entities.Interaction
	if err := row.Scan(&i.ID, &i.ClientID, &i.UserID, &i.Type, &i.Notes, &i.OccurredAt, &i.CreatedAt); err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *InteractionRepository) Create(ctx context.Context, i *entities.Interaction) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO interactions (client_id, user_id, type, notes, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		i.ClientID, i.UserID, i.Type, i.Notes, i.OccurredAt,
	).Scan(&i.ID, &i.CreatedAt)
}

func (r *InteractionRepository) GetByID(ctx context.Context, id int64) (*entities.Interaction, error) {
	i, err := scanInteraction(r.db.QueryRow(ctx, "SELECT "+interactionColumns+" FROM interactions WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err, "interaction")
	}
	return i, nil
}

func (r *InteractionRepository) List(ctx context.Context, userID int64, f entities.InteractionFilter) ([]entities.Interaction, int, error) {
	where := sq.And{sq.Eq{"user_id": userID}}
	if f.ClientID != 0 {
		where = append(where, sq.Eq{"client_id": f.ClientID})
	}
	if f.Type != "" {
		where = append(where, sq.Eq{"type": f.Type})
	}

	total, err := count(ctx, r.db, "interactions", where)
	if err != nil {
		return nil, 0, err
	}

	q := psql.Select(interactionColumns).From("interactions").Where(where).OrderBy("occurred_at DESC, id DESC")
	query, args, err := paginate(q, f.Page, f.Limit).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []entities.Interaction{}
	for rows.Next() {
		i, err := scanInteraction(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *i)
	}
	return items, total, rows.Err()
}

func (r *InteractionRepository) CountByUser(ctx context.Context, userID int64) (int, error) {
	return count(ctx, r.db, "interactions", sq.Eq{"user_id": userID})
}
