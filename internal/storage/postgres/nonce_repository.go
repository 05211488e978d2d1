package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

type nonceRepository struct {
	db *sql.DB
}

// NewNonceRepository создаёт PostgreSQL-реализацию NonceRepository.
func NewNonceRepository(store *Store) domain.NonceRepository {
	return &nonceRepository{db: store.DB()}
}

func (r *nonceRepository) Create(nonce domain.Nonce) error {
	nonce.Token = strings.TrimSpace(nonce.Token)
	if nonce.Token == "" {
		return domain.ErrNonceRequired
	}
	if nonce.CreatedAt.IsZero() {
		nonce.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO admin_nonces (token, action, expires_at, used_at, created_at)
		VALUES ($1,$2,$3,NULL,$4)
	`, nonce.Token, nonce.Action, nonce.ExpiresAt, nonce.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrNonceInvalid
		}
		return fmt.Errorf("insert nonce: %w", err)
	}
	return nil
}

// Consume гасит токен одним UPDATE: конкурентная вторая попытка не найдёт строку с used_at IS NULL.
func (r *nonceRepository) Consume(token, action string, now time.Time) (domain.Nonce, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Nonce{}, domain.ErrNonceRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		nonce  domain.Nonce
		usedAt time.Time
	)
	err := r.db.QueryRowContext(ctx, `
		UPDATE admin_nonces
		SET used_at = $3
		WHERE token = $1
		  AND action = $2
		  AND used_at IS NULL
		  AND expires_at > $3
		RETURNING token, action, expires_at, used_at, created_at
	`, token, action, now).Scan(&nonce.Token, &nonce.Action, &nonce.ExpiresAt, &usedAt, &nonce.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Nonce{}, domain.ErrNonceInvalid
		}
		return domain.Nonce{}, fmt.Errorf("consume nonce: %w", err)
	}
	usedAt = usedAt.UTC()
	nonce.UsedAt = &usedAt
	return nonce, nil
}

func (r *nonceRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if before.IsZero() {
		before = time.Now().UTC()
	}

	var (
		res sql.Result
		err error
	)
	if limit > 0 {
		res, err = r.db.ExecContext(ctx, `
			DELETE FROM admin_nonces
			WHERE token IN (
				SELECT token
				FROM admin_nonces
				WHERE expires_at <= $1
				ORDER BY expires_at ASC
				LIMIT $2
			)
		`, before, limit)
	} else {
		res, err = r.db.ExecContext(ctx, `DELETE FROM admin_nonces WHERE expires_at <= $1`, before)
	}
	if err != nil {
		return 0, fmt.Errorf("delete expired nonces: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("nonce rows affected: %w", err)
	}
	return int(affected), nil
}

var _ domain.NonceRepository = (*nonceRepository)(nil)
