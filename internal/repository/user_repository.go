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

const userColumns = `id, email, password_hash, name, company, role, admin_role, permissions,
	account_status, trial_ends_at, trial_warning_sent, last_login_at, created_at, updated_at`

type UserRepository struct {
	db *pgxpool.Pool
}

var _ interfaces.UserStore = (*UserRepository)(nil)

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row scanner) (*entities.User, error) {
	var u entities.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Company, &u.Role, &u.AdminRole,
		&u.Permissions, &u.AccountStatus, &u.TrialEndsAt, &u.TrialWarningSent, &u.LastLoginAt,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if u.Permissions == nil {
		u.Permissions = []string{}
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, user *entities.User) error {
	if user.Permissions == nil {
		user.Permissions = []string{}
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, name, company, role, admin_role, permissions,
			account_status, trial_ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		strings.ToLower(user.Email), user.PasswordHash, user.Name, user.Company, user.Role,
		user.AdminRole, user.Permissions, user.AccountStatus, user.TrialEndsAt,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err) {
		return entities.Conflict("email already registered")
	}
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entities.User, error) {
	row := r.db.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	row := r.db.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", strings.ToLower(email))
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return u, nil
}

func (r *UserRepository) List(ctx context.Context, f entities.UserFilter) ([]entities.User, int, error) {
	where := sq.And{}
	if f.Status != "" {
		where = append(where, sq.Eq{"account_status": f.Status})
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := likePattern(s)
		where = append(where, sq.Or{
			sq.Expr("email ILIKE ?", p),
			sq.Expr("name ILIKE ?", p),
			sq.Expr("company ILIKE ?", p),
		})
	}

	total, err := count(ctx, r.db, "users", where)
	if err != nil {
		return nil, 0, err
	}

	q := paginate(psql.Select(userColumns).From("users").Where(where).OrderBy("created_at DESC, id DESC"), f.Page, f.Limit)
	query, args, err := q.ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []entities.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

func (r *UserRepository) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entities.NotFound("user")
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return r.exec(ctx, "UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2", hash, id)
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, "UPDATE users SET last_login_at = $1 WHERE id = $2", at, id)
}

func (r *UserRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	return r.exec(ctx, "UPDATE users SET account_status = $1, updated_at = NOW() WHERE id = $2", status, id)
}

func (r *UserRepository) UpdateAdminRole(ctx context.Context, id int64, role string) error {
	return r.exec(ctx, "UPDATE users SET admin_role = $1, updated_at = NOW() WHERE id = $2", role, id)
}

func (r *UserRepository) UpdatePermissions(ctx context.Context, id int64, perms []string) error {
	if perms == nil {
		perms = []string{}
	}
	return r.exec(ctx, "UPDATE users SET permissions = $1, updated_at = NOW() WHERE id = $2", perms, id)
}

func (r *UserRepository) ExtendTrial(ctx context.Context, id int64, endsAt time.Time) error {
	return r.exec(ctx, `
		UPDATE users SET account_status = 'trial', trial_ends_at = $1, trial_warning_sent = FALSE, updated_at = NOW()
		WHERE id = $2`, endsAt, id)
}

func (r *UserRepository) queryUsers(ctx context.Context, query string, args ...any) ([]entities.User, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []entities.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (r *UserRepository) TrialsEndingBetween(ctx context.Context, from, to time.Time) ([]entities.User, error) {
	return r.queryUsers(ctx, "SELECT "+userColumns+` FROM users
		WHERE account_status = 'trial' AND NOT trial_warning_sent
		AND trial_ends_at >= $1 AND trial_ends_at < $2
		ORDER BY trial_ends_at`, from, to)
}

func (r *UserRepository) TrialsEndedBefore(ctx context.Context, t time.Time) ([]entities.User, error) {
	return r.queryUsers(ctx, "SELECT "+userColumns+` FROM users
		WHERE account_status = 'trial' AND trial_ends_at <= $1
		ORDER BY trial_ends_at`, t)
}

func (r *UserRepository) MarkTrialWarningSent(ctx context.Context, id int64) error {
	return r.exec(ctx, "UPDATE users SET trial_warning_sent = TRUE, updated_at = NOW() WHERE id = $1", id)
}

func (r *UserRepository) ExpireTrial(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET account_status = 'expired', updated_at = NOW()
		WHERE id = $1 AND account_status = 'trial'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes the user and everything they own in one transaction.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cascade := []string{
		"DELETE FROM webhook_retry_jobs WHERE webhook_id IN (SELECT id FROM webhooks WHERE user_id = $1)",
		"DELETE FROM webhook_deliveries WHERE webhook_id IN (SELECT id FROM webhooks WHERE user_id = $1)",
		"DELETE FROM webhooks WHERE user_id = $1",
		"DELETE FROM interactions WHERE user_id = $1",
		"DELETE FROM follow_ups WHERE user_id = $1",
		"DELETE FROM clients WHERE user_id = $1",
		"DELETE FROM user_journey_milestones WHERE user_id = $1",
		"DELETE FROM user_journey_progress WHERE user_id = $1",
	}
	for _, stmt := range cascade {
		if _, err := tx.Exec(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete user %d: %w", id, err)
		}
	}

	tag, err := tx.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entities.NotFound("user")
	}
	return tx.Commit(ctx)
}

// Stats returns platform-wide counts for the admin dashboard.
func (r *UserRepository) Stats(ctx context.Context, now time.Time) (*entities.UserStats, error) {
	stats := &entities.UserStats{
		ByStatus: map[string]int{},
		ByRole:   map[string]int{},
	}

	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE admin_role IN ('admin', 'master_admin')),
			(SELECT COUNT(*) FROM users WHERE created_at >= $1),
			(SELECT COUNT(*) FROM clients),
			(SELECT COUNT(*) FROM follow_ups),
			(SELECT COUNT(*) FROM interactions),
			(SELECT COUNT(*) FROM webhooks),
			(SELECT COUNT(*) FROM webhook_deliveries WHERE status = 'failed' AND created_at >= $2)`,
		now.AddDate(0, 0, -7), now.Add(-24*time.Hour),
	).Scan(&stats.TotalUsers, &stats.AdminCount, &stats.NewLast7Days, &stats.TotalClients,
		&stats.TotalFollowUps, &stats.TotalInteraction, &stats.TotalWebhooks, &stats.FailedDeliveries)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}

	if err := r.groupCount(ctx, "account_status", stats.ByStatus); err != nil {
		return nil, err
	}
	if err := r.groupCount(ctx, "role", stats.ByRole); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *UserRepository) groupCount(ctx context.Context, column string, into map[string]int) error {
	rows, err := r.db.Query(ctx, fmt.Sprintf("SELECT %s, COUNT(*) FROM users GROUP BY %s", column, column))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}
