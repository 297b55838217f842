package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx transactions,
// so queries run the same against the pool, a request-scoped connection or
// inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

// User is the persisted user record. ID is assigned by the database on
// creation and never changes; ClerkID is the identity provider's stable
// identifier and is unique across the table. No column is nullable, absent
// source data is stored as an explicit default instead.
type User struct {
	ID        uuid.UUID `json:"id"`
	ClerkID   string    `json:"clerk_id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Photo     string    `json:"photo"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateUserParams struct {
	ClerkID   string `json:"clerk_id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Photo     string `json:"photo"`
}

// UpdateUserParams carries the mutable columns. A nil Email leaves the
// stored address untouched; the remaining fields always overwrite.
type UpdateUserParams struct {
	ClerkID   string  `json:"clerk_id"`
	Email     *string `json:"email"`
	Username  string  `json:"username"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Photo     string  `json:"photo"`
}

const userColumns = `id, clerk_id, email, username, first_name, last_name, photo, created_at, updated_at`

const createUser = `
INSERT INTO users (clerk_id, email, username, first_name, last_name, photo)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (clerk_id) DO UPDATE SET clerk_id = excluded.clerk_id
RETURNING ` + userColumns

// CreateUser inserts a new user record. On a duplicate clerk_id the insert
// degrades, atomically, into returning the existing row unchanged; repeated
// deliveries of the same creation event therefore converge on one record.
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser,
		arg.ClerkID,
		arg.Email,
		arg.Username,
		arg.FirstName,
		arg.LastName,
		arg.Photo,
	)
	return scanUser(row)
}

const updateUser = `
UPDATE users
SET email = COALESCE($2, email),
    username = $3,
    first_name = $4,
    last_name = $5,
    photo = $6,
    updated_at = now()
WHERE clerk_id = $1
RETURNING ` + userColumns

// UpdateUser overwrites the mutable columns of the record matching the
// clerk_id. Returns pgx.ErrNoRows when no such record exists; it never
// creates one.
func (q *Queries) UpdateUser(ctx context.Context, arg UpdateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, updateUser,
		arg.ClerkID,
		arg.Email,
		arg.Username,
		arg.FirstName,
		arg.LastName,
		arg.Photo,
	)
	return scanUser(row)
}

const deleteUser = `
DELETE FROM users
WHERE clerk_id = $1
RETURNING ` + userColumns

// DeleteUser removes the record matching the clerk_id and returns it.
// Returns pgx.ErrNoRows when nothing matched.
func (q *Queries) DeleteUser(ctx context.Context, clerkID string) (User, error) {
	row := q.db.QueryRow(ctx, deleteUser, clerkID)
	return scanUser(row)
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.ClerkID,
		&u.Email,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.Photo,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}
