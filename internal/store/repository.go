package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrAccountNotFound is returned when no account matches the lookup.
var ErrAccountNotFound = errors.New("broker account not found")

// db is the subset of *pgxpool.Pool used by the repository.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PGPoolConfig tunes the Postgres connection pool.
type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// Repository reads and writes user_broker_accounts rows.
type Repository struct {
	db     db
	pool   *pgxpool.Pool
	cipher *Cipher
	logger *zap.Logger
}

// NewRepository connects to Postgres at pgURL.
func NewRepository(ctx context.Context, pgURL string, poolCfg PGPoolConfig, c *Cipher, logger *zap.Logger) (*Repository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("invalid pg config: %w", err)
	}
	if poolCfg.MaxConns > 0 {
		cfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		cfg.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = poolCfg.MaxConnLifetime
	}
	if poolCfg.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = poolCfg.MaxConnIdleTime
	}
	if poolCfg.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = poolCfg.HealthCheckPeriod
	}

	connectCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &Repository{db: pool, pool: pool, cipher: c, logger: logger}, nil
}

func newRepositoryWithDB(d db, c *Cipher) *Repository {
	return &Repository{db: d, cipher: c, logger: zap.NewNop()}
}

const selectAccount = `
	SELECT id, user_id, broker_id, client_code, api_key, mpin, totp_secret,
	       access_token, refresh_token, token_expiry, is_active, COALESCE(notes, ''),
	       created_at, updated_at
	FROM user_broker_accounts
	WHERE user_id = $1 AND broker_id = $2
	LIMIT 1;
`

// Get loads and decrypts the account for a user and broker.
func (r *Repository) Get(ctx context.Context, userID, brokerID int64) (*BrokerAccount, error) {
	var (
		a                        BrokerAccount
		apiKey, mpin, totpSecret string
		access, refresh          *string
	)
	err := r.db.QueryRow(ctx, selectAccount, userID, brokerID).Scan(
		&a.ID, &a.UserID, &a.BrokerID, &a.ClientCode,
		&apiKey, &mpin, &totpSecret,
		&access, &refresh, &a.TokenExpiry, &a.IsActive, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %d broker %d: %w", userID, brokerID, ErrAccountNotFound)
		}
		return nil, fmt.Errorf("get broker account scan failed: %w", err)
	}

	if a.APIKey, err = r.cipher.Decrypt(apiKey); err != nil {
		return nil, fmt.Errorf("api_key: %w", err)
	}
	if a.MPIN, err = r.cipher.Decrypt(mpin); err != nil {
		return nil, fmt.Errorf("mpin: %w", err)
	}
	if a.TOTPSecret, err = r.cipher.Decrypt(totpSecret); err != nil {
		return nil, fmt.Errorf("totp_secret: %w", err)
	}
	if a.AccessToken, err = r.cipher.decryptNullable(access); err != nil {
		return nil, fmt.Errorf("access_token: %w", err)
	}
	if a.RefreshToken, err = r.cipher.decryptNullable(refresh); err != nil {
		return nil, fmt.Errorf("refresh_token: %w", err)
	}
	return &a, nil
}

// Upsert writes an account, one per user and broker.
func (r *Repository) Upsert(ctx context.Context, a *BrokerAccount) error {
	apiKey, err := r.cipher.Encrypt(a.APIKey)
	if err != nil {
		return err
	}
	mpin, err := r.cipher.Encrypt(a.MPIN)
	if err != nil {
		return err
	}
	totpSecret, err := r.cipher.Encrypt(a.TOTPSecret)
	if err != nil {
		return err
	}
	access, err := r.cipher.encryptNullable(a.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := r.cipher.encryptNullable(a.RefreshToken)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO user_broker_accounts (
			user_id, broker_id, client_code, api_key, mpin, totp_secret,
			access_token, refresh_token, token_expiry, is_active, notes,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (user_id, broker_id)
		DO UPDATE SET
			client_code = EXCLUDED.client_code,
			api_key = EXCLUDED.api_key,
			mpin = EXCLUDED.mpin,
			totp_secret = EXCLUDED.totp_secret,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry = EXCLUDED.token_expiry,
			is_active = EXCLUDED.is_active,
			notes = EXCLUDED.notes,
			updated_at = NOW();
	`, a.UserID, a.BrokerID, a.ClientCode, apiKey, mpin, totpSecret,
		access, refresh, a.TokenExpiry, a.IsActive, a.Notes)
	if err != nil {
		r.logger.Error("store.pg.upsert_account_failed", zap.Error(err))
		return fmt.Errorf("upsert broker account: %w", err)
	}
	return nil
}

// SaveToken records a refreshed session token and its expiry on the account.
func (r *Repository) SaveToken(ctx context.Context, userID, brokerID int64, token string, expiry time.Time) error {
	enc, err := r.cipher.Encrypt(token)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE user_broker_accounts
		SET access_token = $3, token_expiry = $4, updated_at = NOW()
		WHERE user_id = $1 AND broker_id = $2;
	`, userID, brokerID, enc, expiry)
	if err != nil {
		r.logger.Error("store.pg.save_token_failed", zap.Error(err))
		return fmt.Errorf("save token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d broker %d: %w", userID, brokerID, ErrAccountNotFound)
	}
	return nil
}

// Delete removes the account and with it every stored credential.
func (r *Repository) Delete(ctx context.Context, userID, brokerID int64) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM user_broker_accounts WHERE user_id = $1 AND broker_id = $2;
	`, userID, brokerID)
	if err != nil {
		return fmt.Errorf("delete broker account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d broker %d: %w", userID, brokerID, ErrAccountNotFound)
	}
	return nil
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("postgres not initialized")
	}
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}
