package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smart-hedge/marketdata-gateway/internal/store"
)

// ErrAccountInactive is returned when the stored broker account is disabled.
var ErrAccountInactive = errors.New("broker account inactive")

// AccountStore loads a broker account and records refreshed tokens on it;
// *store.Repository satisfies it.
type AccountStore interface {
	Get(ctx context.Context, userID, brokerID int64) (*store.BrokerAccount, error)
	SaveToken(ctx context.Context, userID, brokerID int64, token string, expiry time.Time) error
}

// AccountProvider reads credentials from one user's encrypted broker account.
type AccountProvider struct {
	accounts AccountStore
	userID   int64
	brokerID int64
}

func NewAccountProvider(accounts AccountStore, userID, brokerID int64) *AccountProvider {
	return &AccountProvider{accounts: accounts, userID: userID, brokerID: brokerID}
}

func (p *AccountProvider) Credentials(ctx context.Context) (Credentials, error) {
	a, err := p.accounts.Get(ctx, p.userID, p.brokerID)
	if err != nil {
		return Credentials{}, fmt.Errorf("load broker account: %w", err)
	}
	if !a.IsActive {
		return Credentials{}, fmt.Errorf("user %d broker %d: %w", p.userID, p.brokerID, ErrAccountInactive)
	}
	return Credentials{
		ClientCode: a.ClientCode,
		Password:   a.MPIN,
		TOTPSecret: a.TOTPSecret,
		APIKey:     a.APIKey,
	}, nil
}

// SaveToken persists a freshly issued session token on the account row.
func (p *AccountProvider) SaveToken(ctx context.Context, token string, expiry time.Time) error {
	if err := p.accounts.SaveToken(ctx, p.userID, p.brokerID, token, expiry); err != nil {
		return fmt.Errorf("save session token: %w", err)
	}
	return nil
}
