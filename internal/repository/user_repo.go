package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"musclemate/internal/domain"
)

// UserRepository define el contrato de persistencia para usuarios.
// Las busquedas sin resultado devuelven pgx.ErrNoRows.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	FindByName(ctx context.Context, name string) (domain.User, error)
	FindByNameContains(ctx context.Context, substring string) ([]domain.User, error)
	FindAll(ctx context.Context) ([]domain.User, error)
	Save(ctx context.Context, user domain.User) (domain.User, error)
	DeleteByID(ctx context.Context, id string) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `
	id, email, password_hash, name, last_name, city, state, bio,
	birthdate, weight, workout_count, total_time, total_weight,
	total_cardio_time, created_at
`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Name,
		&u.LastName,
		&u.City,
		&u.State,
		&u.Bio,
		&u.Birthdate,
		&u.Weight,
		&u.WorkoutCount,
		&u.TotalTime,
		&u.TotalWeight,
		&u.TotalCardioTime,
		&u.CreatedAt,
	)
	return u, err
}

func (r *PgUserRepository) FindByID(ctx context.Context, id string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PgUserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *PgUserRepository) FindByName(ctx context.Context, name string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE name = $1 LIMIT 1`
	return scanUser(r.pool.QueryRow(ctx, query, name))
}

func (r *PgUserRepository) FindByNameContains(ctx context.Context, substring string) ([]domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE name ILIKE '%' || $1 || '%' ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, substring)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (r *PgUserRepository) FindAll(ctx context.Context) ([]domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

// Save inserta o actualiza por id. La violacion del indice unico de email se
// traduce a domain.ErrEmailTaken: esa es la garantia atomica de unicidad que
// respalda el chequeo read-then-write del servicio.
func (r *PgUserRepository) Save(ctx context.Context, user domain.User) (domain.User, error) {
	const query = `
		INSERT INTO users (
			id, email, password_hash, name, last_name, city, state, bio,
			birthdate, weight, workout_count, total_time, total_weight,
			total_cardio_time, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			password_hash = EXCLUDED.password_hash,
			name = EXCLUDED.name,
			last_name = EXCLUDED.last_name,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			bio = EXCLUDED.bio,
			birthdate = EXCLUDED.birthdate,
			weight = EXCLUDED.weight
		RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.LastName,
		user.City,
		user.State,
		user.Bio,
		user.Birthdate,
		user.Weight,
		user.WorkoutCount,
		user.TotalTime,
		user.TotalWeight,
		user.TotalCardioTime,
		user.CreatedAt,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.User{}, domain.ErrEmailTaken
		}
		return domain.User{}, err
	}
	return u, nil
}

func (r *PgUserRepository) DeleteByID(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func collectUsers(rows pgx.Rows) ([]domain.User, error) {
	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
