package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smart-hedge/marketdata-gateway/internal/store"
	pkgsecrets "github.com/smart-hedge/marketdata-gateway/pkg/secrets"
)

// ─── Validate ────────────────────────────────────────────────────────────────

func TestCredentials_Validate(t *testing.T) {
	good := Credentials{ClientCode: "A123456", Password: "4321", TOTPSecret: "JBSWY3DPEHPK3PXP"}
	require.NoError(t, good.Validate())

	tests := []struct {
		name   string
		mutate func(*Credentials)
		msg    string
	}{
		{"empty client", func(c *Credentials) { c.ClientCode = "" }, "client code"},
		{"placeholder client", func(c *Credentials) { c.ClientCode = "your-angel-client-id" }, "client code"},
		{"default client", func(c *Credentials) { c.ClientCode = "smarthedge" }, "client code"},
		{"empty mpin", func(c *Credentials) { c.Password = "" }, "MPIN"},
		{"placeholder mpin", func(c *Credentials) { c.Password = "your-angel-mpin" }, "MPIN"},
		{"empty totp", func(c *Credentials) { c.TOTPSecret = "" }, "TOTP"},
		{"placeholder totp", func(c *Credentials) { c.TOTPSecret = "your-angel-totp-secret" }, "TOTP"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := good
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrIncomplete))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestCredentials_ValidateLoginIgnoresTOTP(t *testing.T) {
	c := Credentials{ClientCode: "A123456", Password: "4321"}
	require.NoError(t, c.ValidateLogin())
	assert.ErrorIs(t, c.Validate(), ErrIncomplete)

	c.Password = " your-angel-mpin "
	assert.ErrorIs(t, c.ValidateLogin(), ErrIncomplete)
}

func TestStatic(t *testing.T) {
	want := Credentials{ClientCode: "A1", Password: "1", TOTPSecret: "S", APIKey: "K"}
	got, err := NewStatic(want).Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// ─── AWSProvider ─────────────────────────────────────────────────────────────

type mockSecrets struct {
	secrets map[string]map[string]string
	names   []string
	calls   int
	listErr error
}

func (m *mockSecrets) GetSecret(_ context.Context, name string) (map[string]string, error) {
	m.calls++
	s, ok := m.secrets[name]
	if !ok {
		return nil, pkgsecrets.ErrNotFound
	}
	return s, nil
}

func (m *mockSecrets) ListSecrets(context.Context, string) ([]string, error) {
	return m.names, m.listErr
}

func newAWS(m *mockSecrets) *AWSProvider {
	return NewAWSProvider(zap.NewNop(), "prod", "A123456", m, pkgsecrets.NewCache[Credentials](time.Hour))
}

func TestAWSProvider_ResolvesAndCaches(t *testing.T) {
	m := &mockSecrets{secrets: map[string]map[string]string{
		"prod/a123456/angel": {
			"client_code": "A123456",
			"mpin":        "4321",
			"totp_secret": "JBSWY3DPEHPK3PXP",
			"api_key":     "key-1",
		},
	}}
	p := newAWS(m)
	assert.Equal(t, "prod/a123456/angel", p.SecretName())

	c, err := p.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "4321", c.Password)
	assert.Equal(t, "key-1", c.APIKey)

	_, err = p.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, m.calls, "second call served from cache")

	p.Invalidate()
	_, err = p.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, m.calls)
}

func TestAWSProvider_NotFound(t *testing.T) {
	_, err := newAWS(&mockSecrets{}).Credentials(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgsecrets.ErrNotFound))
}

func TestAWSProvider_MissingField(t *testing.T) {
	m := &mockSecrets{secrets: map[string]map[string]string{
		"prod/a123456/angel": {"client_code": "A123456", "mpin": "4321"},
	}}
	_, err := newAWS(m).Credentials(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required field 'totp_secret'")
}

func TestAWSProvider_DiscoverClients(t *testing.T) {
	m := &mockSecrets{names: []string{
		"prod/a123456/angel",
		"prod/B654321/ANGEL",
		"prod/a123456/zerodha",
		"prod/nested/path/angel",
		"uat/c1/angel",
	}}
	clients, err := newAWS(m).DiscoverClients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a123456", "b654321"}, clients)

	m.listErr = errors.New("throttled")
	_, err = newAWS(m).DiscoverClients(context.Background())
	assert.Error(t, err)
}

// ─── AccountProvider ─────────────────────────────────────────────────────────

type fakeAccounts struct {
	acct  *store.BrokerAccount
	err   error
	saved []string
}

func (f *fakeAccounts) Get(context.Context, int64, int64) (*store.BrokerAccount, error) {
	return f.acct, f.err
}

func (f *fakeAccounts) SaveToken(_ context.Context, userID, brokerID int64, token string, _ time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, token)
	return nil
}

func TestAccountProvider(t *testing.T) {
	p := NewAccountProvider(&fakeAccounts{acct: &store.BrokerAccount{
		ClientCode: "A123456", MPIN: "4321", TOTPSecret: "JBSWY3DPEHPK3PXP", APIKey: "k", IsActive: true,
	}}, 1, 2)

	c, err := p.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Credentials{ClientCode: "A123456", Password: "4321", TOTPSecret: "JBSWY3DPEHPK3PXP", APIKey: "k"}, c)
}

func TestAccountProvider_Inactive(t *testing.T) {
	p := NewAccountProvider(&fakeAccounts{acct: &store.BrokerAccount{ClientCode: "A1", IsActive: false}}, 1, 2)
	_, err := p.Credentials(context.Background())
	assert.True(t, errors.Is(err, ErrAccountInactive))
}

func TestAccountProvider_Missing(t *testing.T) {
	p := NewAccountProvider(&fakeAccounts{err: store.ErrAccountNotFound}, 1, 2)
	_, err := p.Credentials(context.Background())
	assert.True(t, errors.Is(err, store.ErrAccountNotFound))
}

func TestAccountProvider_SaveToken(t *testing.T) {
	accts := &fakeAccounts{}
	var sink TokenSink = NewAccountProvider(accts, 1, 2)

	require.NoError(t, sink.SaveToken(context.Background(), "jwt", time.Now().Add(8*time.Hour)))
	assert.Equal(t, []string{"jwt"}, accts.saved)

	accts.err = store.ErrAccountNotFound
	err := sink.SaveToken(context.Background(), "jwt", time.Now())
	assert.True(t, errors.Is(err, store.ErrAccountNotFound))
}
