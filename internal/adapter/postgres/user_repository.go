package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, name, phone, password_hash, role, active, created_at, updated_at`

var userConstraints = map[string]error{
	"users_email_key": domain.ErrEmailTaken,
}

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, name, phone, password_hash, role, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		u.ID, u.Email, u.Name, u.Phone, u.PasswordHash, u.Role, u.Active,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if mapped := constraintError(err, codeUniqueViolation, userConstraints); mapped != nil {
		return mapped
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

func (r *UserRepo) List(ctx context.Context, f domain.UserFilter) ([]domain.User, int, error) {
	var w filter
	if f.Role != "" {
		w.add("role = %s", f.Role)
	}
	if f.Query != "" {
		w.add("(email ILIKE %s OR name ILIKE %[1]s OR phone ILIKE %[1]s)", likePattern(f.Query))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users `+w.where(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	limit, args := w.page(f.Limit, f.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users `+w.where()+` ORDER BY created_at DESC, id `+limit, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.User, error) {
		u, err := scanUser(row)
		if err != nil {
			return domain.User{}, err
		}
		return *u, nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan users: %w", err)
	}
	return users, total, nil
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, name, phone string) (*domain.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `
		UPDATE users SET name = $2, phone = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, id, name, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return u, nil
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return r.exec(ctx, "update password", `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
}

func (r *UserRepo) SetRole(ctx context.Context, id uuid.UUID, role domain.Role) error {
	return r.exec(ctx, "set role", `UPDATE users SET role = $2, updated_at = now() WHERE id = $1`, id, role)
}

func (r *UserRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.exec(ctx, "set active", `UPDATE users SET active = $2, updated_at = now() WHERE id = $1`, id, active)
}

func (r *UserRepo) CountActiveAdmins(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE role = 'admin' AND active`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return n, nil
}

func (r *UserRepo) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
