package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/smart-hedge/marketdata-gateway/internal/config"
	"github.com/smart-hedge/marketdata-gateway/internal/store"
	"github.com/smart-hedge/marketdata-gateway/pkg/logger"
	"github.com/smart-hedge/marketdata-gateway/pkg/utils"
)

// accountStore is the part of *store.Repository the account commands need.
type accountStore interface {
	Upsert(ctx context.Context, a *store.BrokerAccount) error
	Delete(ctx context.Context, userID, brokerID int64) error
}

func openAccounts(ctx context.Context, cfg *config.Config) (*store.Repository, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	cipher, err := store.NewCipher(cfg.CredentialsKey)
	if err != nil {
		return nil, err
	}
	fmt.Println("Database:", utils.MaskDSN(cfg.DatabaseURL))
	return store.NewRepository(ctx, cfg.DatabaseURL, store.PGPoolConfig{MaxConns: 1}, cipher, logger.Named("store"))
}

func accountKey(cfg *config.Config) error {
	if cfg.AccountUserID <= 0 || cfg.AccountBrokerID <= 0 {
		return errors.New("ACCOUNT_USER_ID and ACCOUNT_BROKER_ID must be set")
	}
	return nil
}

// storeAccount seals the ANGEL_* credentials into the account row read by
// CREDENTIAL_SOURCE=account.
func storeAccount(ctx context.Context, cfg *config.Config, accounts accountStore) error {
	if err := accountKey(cfg); err != nil {
		return err
	}
	creds := envCredentials(cfg)
	if err := creds.Validate(); err != nil {
		return err
	}

	err := accounts.Upsert(ctx, &store.BrokerAccount{
		UserID:     cfg.AccountUserID,
		BrokerID:   cfg.AccountBrokerID,
		ClientCode: creds.ClientCode,
		APIKey:     creds.APIKey,
		MPIN:       creds.Password,
		TOTPSecret: creds.TOTPSecret,
		IsActive:   true,
		Notes:      "stored by angelctl",
	})
	if err != nil {
		return err
	}
	fmt.Printf("Stored account %s for user %d broker %d\n", creds.ClientCode, cfg.AccountUserID, cfg.AccountBrokerID)
	return nil
}

func deleteAccount(ctx context.Context, cfg *config.Config, accounts accountStore) error {
	if err := accountKey(cfg); err != nil {
		return err
	}
	if err := accounts.Delete(ctx, cfg.AccountUserID, cfg.AccountBrokerID); err != nil {
		return err
	}
	fmt.Printf("Deleted account for user %d broker %d\n", cfg.AccountUserID, cfg.AccountBrokerID)
	return nil
}

// withAccounts opens the repository for the duration of fn.
func withAccounts(ctx context.Context, cfg *config.Config, fn func(context.Context, *config.Config, accountStore) error) error {
	repo, err := openAccounts(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(ctx, cfg, repo)
}
