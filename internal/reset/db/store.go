// Package db stores reset requests in SQLite.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skyward-school/skyward/internal/db"
	"github.com/skyward-school/skyward/internal/email"
	"github.com/skyward-school/skyward/internal/errorz"
	"github.com/skyward-school/skyward/internal/krypto"
	"github.com/skyward-school/skyward/internal/reset"
)

// Store is a reset.Store backed by the password_resets table.
// Email addresses are stored encrypted and looked up by blind index.
type Store struct {
	readDB        *sql.DB
	writeDB       *sql.DB
	encryptor     *krypto.Encryptor
	blindIndexKey krypto.Key
}

// New creates a new Store.
func New(readDB, writeDB *sql.DB, encryptor *krypto.Encryptor, blindIndexKey krypto.Key) *Store {
	return &Store{
		readDB:        readDB,
		writeDB:       writeDB,
		encryptor:     encryptor,
		blindIndexKey: blindIndexKey,
	}
}

// Insert stores r and assigns its ID when it has none.
func (s *Store) Insert(ctx context.Context, r *reset.Request) error {
	id := r.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	q := s.newQuery()
	q.Unsafe(`INSERT INTO password_resets (id, email_encrypted, email_blind_index, code_hash, created_at, expires_at, used, used_at) VALUES (`)
	q.Param(id)
	q.Unsafe(`, `)
	q.ParamEncrypted([]byte(r.Email))
	q.Unsafe(`, `)
	q.ParamBlindIndex([]byte(r.Email))
	q.Unsafe(`, `)
	q.Params(string(r.CodeHash), r.CreatedAt.UTC(), r.ExpiresAt.UTC(), r.Used, utcOrNil(r.UsedAt))
	q.Unsafe(`)`)

	query, params, err := q.Get()
	if err != nil {
		return err
	}

	_, err = s.writeDB.ExecContext(ctx, query, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	r.ID = id
	return nil
}

func (s *Store) FindRecentByEmail(ctx context.Context, addr email.Address, since time.Time) (reset.Request, error) {
	q := s.newQuery()
	q.Unsafe(`SELECT ` + columns + ` FROM password_resets WHERE email_blind_index = `)
	q.ParamBlindIndex([]byte(addr))
	// times are stored in UTC with a fixed layout, so they compare as text.
	q.Unsafe(` AND created_at >= `)
	q.Param(since.UTC())
	q.Unsafe(` ORDER BY created_at DESC, rowid DESC LIMIT 1`)

	requests, err := s.selectRequests(ctx, q)
	if err != nil {
		return reset.Request{}, err
	}

	if len(requests) == 0 {
		return reset.Request{}, fmt.Errorf("no recent request: %w", errorz.ErrNotFound)
	}

	return requests[0], nil
}

func (s *Store) FindUnusedByEmail(ctx context.Context, addr email.Address, limit int) ([]reset.Request, error) {
	q := s.newQuery()
	q.Unsafe(`SELECT ` + columns + ` FROM password_resets WHERE email_blind_index = `)
	q.ParamBlindIndex([]byte(addr))
	q.Unsafe(` AND used = 0 ORDER BY created_at DESC, rowid DESC LIMIT `)
	q.Param(limit)

	return s.selectRequests(ctx, q)
}

// MarkUsed flips the used flag of an unused request. The update is
// conditional, of two concurrent calls for the same request only one succeeds.
func (s *Store) MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	result, err := s.writeDB.ExecContext(ctx,
		`UPDATE password_resets SET used = 1, used_at = ? WHERE id = ? AND used = 0`,
		usedAt.UTC(), id,
	)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errorz.MapDBErr(err)
	}

	if rows == 1 {
		return nil
	}

	var used bool
	err = s.writeDB.QueryRowContext(ctx, `SELECT used FROM password_resets WHERE id = ?`, id).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("request %s: %w", id, errorz.ErrNotFound)
	}

	if err != nil {
		return errorz.MapDBErr(err)
	}

	return reset.ErrAlreadyUsed
}

const columns = `id, email_encrypted, code_hash, created_at, expires_at, used, used_at`

func (s *Store) selectRequests(ctx context.Context, q *db.Query) ([]reset.Request, error) {
	query, params, err := q.Get()
	if err != nil {
		return nil, err
	}

	rows, err := s.readDB.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	defer rows.Close()

	out := make([]reset.Request, 0)
	for rows.Next() {
		var (
			r        reset.Request
			codeHash string
			usedAt   sql.NullTime
		)
		emailBytes := q.DecryptionTarget()
		err := rows.Scan(&r.ID, emailBytes, &codeHash, &r.CreatedAt, &r.ExpiresAt, &r.Used, &usedAt)
		if err != nil {
			return nil, errorz.MapDBErr(err)
		}

		r.Email, err = email.ParseAddress(string(emailBytes.Data))
		if err != nil {
			return nil, err
		}

		r.CodeHash = reset.Digest(codeHash)
		r.CreatedAt = r.CreatedAt.UTC()
		r.ExpiresAt = r.ExpiresAt.UTC()
		if usedAt.Valid {
			t := usedAt.Time.UTC()
			r.UsedAt = &t
		}

		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}

func (s *Store) newQuery() *db.Query {
	return &db.Query{
		Encryptor:     s.encryptor,
		BlindIndexKey: s.blindIndexKey,
	}
}

func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
