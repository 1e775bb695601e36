package credentials

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophclass/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/gophclass/internal/common"
	"github.com/dmitrijs2005/gophclass/internal/cryptox"
	"github.com/dmitrijs2005/gophclass/internal/dbx"
	"github.com/dmitrijs2005/gophclass/internal/logging"
)

// sealedKeys are encrypted at rest when a storage secret is configured.
var sealedKeys = map[string]bool{
	common.KeyAccessToken:  true,
	common.KeyRefreshToken: true,
}

// SQLiteStore keeps the record in the metadata table of the local database.
// The schema must already be migrated (see migrations.Up).
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger
	sealer *cryptox.Sealer

	// mu serialises writers against readers so a Load never sees half of a
	// Save or Clear, even when the driver allows concurrent connections.
	mu sync.RWMutex
}

type Option func(ctx context.Context, s *SQLiteStore) error

// WithSecret seals tokens with a key derived from secret. The salt is
// created on first use and stored next to the record.
func WithSecret(secret []byte) Option {
	return func(ctx context.Context, s *SQLiteStore) error {
		if len(secret) == 0 {
			return nil
		}
		repo := metadata.NewSQLiteRepository(s.db)
		salt, err := repo.Get(ctx, common.KeySealSalt)
		if err != nil {
			return fmt.Errorf("load seal salt: %w", err)
		}
		if salt == nil {
			salt = cryptox.NewSalt()
			if err := repo.Set(ctx, common.KeySealSalt, salt); err != nil {
				return fmt.Errorf("store seal salt: %w", err)
			}
		}
		key := cryptox.DeriveKey(secret, salt)
		defer common.WipeByteArray(key)

		sealer, err := cryptox.NewSealer(key)
		if err != nil {
			return err
		}
		s.sealer = sealer
		return nil
	}
}

func NewSQLiteStore(ctx context.Context, db *sql.DB, logger logging.Logger, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, logger: logger}
	for _, opt := range opts {
		if err := opt(ctx, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}

	values := map[string]string{
		common.KeyAccessToken:     rec.AccessToken,
		common.KeyRefreshToken:    rec.RefreshToken,
		common.KeySessionID:       rec.SessionID,
		common.KeyUserID:          rec.UserID,
		common.KeyUserName:        rec.UserName,
		common.KeyUserEmail:       rec.UserEmail,
		common.KeyThemePreference: rec.ThemePreference,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Delete(ctx, common.CredentialKeys...); err != nil {
			return err
		}
		for _, key := range common.CredentialKeys {
			v := values[key]
			if v == "" {
				continue
			}
			if err := repo.Set(ctx, key, s.encode(key, v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Load(ctx context.Context) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all, err := metadata.NewSQLiteRepository(s.db).List(ctx)
	if err != nil {
		s.logger.Error(ctx, "credential store read failed", "error", err)
		return Record{}, false
	}

	get := func(key string) (string, error) {
		raw, ok := all[key]
		if !ok {
			return "", nil
		}
		return s.decode(key, raw)
	}

	var rec Record
	fields := []struct {
		key string
		dst *string
	}{
		{common.KeyAccessToken, &rec.AccessToken},
		{common.KeyRefreshToken, &rec.RefreshToken},
		{common.KeySessionID, &rec.SessionID},
		{common.KeyUserID, &rec.UserID},
		{common.KeyUserName, &rec.UserName},
		{common.KeyUserEmail, &rec.UserEmail},
		{common.KeyThemePreference, &rec.ThemePreference},
	}
	for _, f := range fields {
		v, err := get(f.key)
		if err != nil {
			s.logger.Warn(ctx, "stored credential unreadable", "key", f.key, "error", err)
			return Record{}, false
		}
		*f.dst = v
	}

	if !rec.HasCredentials() {
		return Record{}, false
	}
	return rec, true
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.NewSQLiteRepository(tx).Delete(ctx, common.CredentialKeys...)
	})
}

func (s *SQLiteStore) UpdateAccessToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrIncompleteRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		current, err := repo.Get(ctx, common.KeyAccessToken)
		if err != nil {
			return err
		}
		if current == nil {
			return common.ErrNoCredentials
		}
		return repo.Set(ctx, common.KeyAccessToken, s.encode(common.KeyAccessToken, token))
	})
}

func (s *SQLiteStore) encode(key, value string) []byte {
	if s.sealer != nil && sealedKeys[key] {
		return s.sealer.Seal(key, []byte(value))
	}
	return []byte(value)
}

func (s *SQLiteStore) decode(key string, raw []byte) (string, error) {
	if s.sealer != nil && sealedKeys[key] {
		plain, err := s.sealer.Open(key, raw)
		if err != nil {
			return "", err
		}
		return string(plain), nil
	}
	return string(raw), nil
}
