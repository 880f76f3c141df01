// Command angelctl provisions and checks the Angel One SmartAPI login.
//
//	angelctl setup-totp
//	angelctl test
//	angelctl test-manual -totp 123456
//	angelctl store-account
//	angelctl delete-account
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/smart-hedge/marketdata-gateway/internal/angel"
	"github.com/smart-hedge/marketdata-gateway/internal/cache"
	"github.com/smart-hedge/marketdata-gateway/internal/config"
	"github.com/smart-hedge/marketdata-gateway/internal/credentials"
	"github.com/smart-hedge/marketdata-gateway/internal/marketdata"
	pkgconfig "github.com/smart-hedge/marketdata-gateway/pkg/config"
	"github.com/smart-hedge/marketdata-gateway/pkg/logger"
	"github.com/smart-hedge/marketdata-gateway/pkg/totp"
	"github.com/smart-hedge/marketdata-gateway/pkg/utils"
)

const issuer = "Angel One SmartAPI"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	logger.Init("angelctl", cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.AngelHTTPTimeout)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "setup-totp":
		err = setupTOTP(cfg)
	case "test":
		err = testLogin(ctx, cfg)
	case "test-manual":
		fs := flag.NewFlagSet("test-manual", flag.ExitOnError)
		code := fs.String("totp", "", "6-digit code from the authenticator app")
		_ = fs.Parse(os.Args[2:])
		err = testManual(ctx, cfg, *code)
	case "store-account":
		err = withAccounts(ctx, cfg, storeAccount)
	case "delete-account":
		err = withAccounts(ctx, cfg, deleteAccount)
	case "-h", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: angelctl <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  setup-totp              generate a TOTP secret and provisioning URL")
	fmt.Println("  test                    log in with the configured secret and fetch top gainers")
	fmt.Println("  test-manual -totp CODE  log in with a code read from the authenticator app")
	fmt.Println("  store-account           encrypt the ANGEL_* credentials into the broker account table")
	fmt.Println("  delete-account          remove the ACCOUNT_USER_ID/ACCOUNT_BROKER_ID account")
}

func setupTOTP(cfg *config.Config) error {
	account := cfg.AngelClientID
	if account == "" {
		account = "smarthedge"
	}
	key, err := totp.NewSecret(issuer, account)
	if err != nil {
		return err
	}
	code, err := totp.Generate(key.Secret, time.Now())
	if err != nil {
		return err
	}

	fmt.Println("Your TOTP Secret Key:", key.Secret)
	fmt.Println()
	fmt.Println("Provisioning URL (scan as QR code):")
	fmt.Println("  ", key.URL)
	fmt.Println()
	fmt.Println("Add to your .env file:")
	fmt.Println("   ANGEL_TOTP_SECRET=" + key.Secret)
	fmt.Println("   ANGEL_CLIENT_ID=your-actual-client-id")
	fmt.Println("   ANGEL_MPIN=your-actual-mpin")
	fmt.Println()
	fmt.Println("Current code:", code)
	return nil
}

func envCredentials(cfg *config.Config) credentials.Credentials {
	return credentials.Credentials{
		ClientCode: cfg.AngelClientID,
		Password:   cfg.AngelMPIN,
		TOTPSecret: cfg.AngelTOTPSecret,
		APIKey:     cfg.AngelAPIKey,
	}
}

func newAuthenticator(cfg *config.Config, creds credentials.Credentials) (*angel.Authenticator, *angel.Client) {
	identity := angel.Identity{
		LocalIP:    cfg.AngelLocalIP,
		PublicIP:   cfg.AngelPublicIP,
		MACAddress: cfg.AngelMACAddress,
		APIKey:     cfg.AngelAPIKey,
	}
	exec := angel.NewExecutor(logger.Named("angel.http"), &http.Client{Timeout: cfg.AngelHTTPTimeout}, nil, nil)
	auth := angel.NewAuthenticator(logger.Named("angel.auth"), exec, cache.NewMemory(), credentials.NewStatic(creds), nil, angel.AuthConfig{
		BaseURL:  cfg.AngelAuthURL,
		TokenTTL: cfg.AngelTokenTTL,
		Identity: identity,
	})
	return auth, angel.NewClient(logger.Named("angel.client"), exec, cfg.AngelAPIURL, identity)
}

func printConfig(c credentials.Credentials, withSecret bool) {
	fmt.Println("Configuration check passed!")
	fmt.Println("Client ID:", c.ClientCode)
	fmt.Println("MPIN:", strings.Repeat("*", len(c.Password)))
	if withSecret {
		fmt.Println("TOTP Secret:", utils.MaskPrefix(c.TOTPSecret, 4))
	}
	if c.APIKey != "" {
		fmt.Println("API Key:", utils.MaskKey(c.APIKey))
	}
	fmt.Println()
}

func testLogin(ctx context.Context, cfg *config.Config) error {
	creds := envCredentials(cfg)
	if err := creds.Validate(); err != nil {
		if errors.Is(err, credentials.ErrIncomplete) && strings.Contains(err.Error(), "TOTP") {
			fmt.Println("Run: angelctl setup-totp to generate one")
		}
		return err
	}
	printConfig(creds, true)

	code, err := totp.Generate(creds.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("TOTP generation failed: %w", err)
	}
	fmt.Println("Generated TOTP:", code)

	fmt.Println("Testing authentication...")
	auth, client := newAuthenticator(cfg, creds)
	token, err := auth.Token(ctx)
	if err != nil {
		return fmt.Errorf("authentication failed [%s]: %w", angel.Reason(err), err)
	}
	fmt.Println("Authentication successful!")
	fmt.Println("JWT Token:", preview(token))

	fmt.Println("Testing market data API...")
	env, err := client.GainersLosers(ctx, token, angel.MarketQuery{
		DataType:   marketdata.DefaultDataType,
		ExpiryType: marketdata.DefaultExpiryType,
	})
	if err != nil {
		return fmt.Errorf("market data request failed [%s]: %w", angel.Reason(err), err)
	}

	var movers []marketdata.Mover
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &movers); err != nil {
			return fmt.Errorf("market data decode failed: %w", err)
		}
	}
	fmt.Printf("Market data API working! Found %d gainers\n", len(movers))
	if len(movers) > 0 {
		fmt.Printf("Top gainer: %s (+%s%%)\n", movers[0].TradingSymbol, movers[0].PercentChange.String())
	}
	return nil
}

func testManual(ctx context.Context, cfg *config.Config, code string) error {
	if code == "" {
		return errors.New("missing -totp CODE")
	}
	creds := envCredentials(cfg)
	if err := creds.ValidateLogin(); err != nil {
		return err
	}
	printConfig(creds, false)
	fmt.Println("Using TOTP:", code)
	if note := codeNote(code, creds.TOTPSecret, time.Now()); note != "" {
		fmt.Println(note)
	}

	fmt.Println("Testing authentication...")
	auth, _ := newAuthenticator(cfg, creds)
	token, err := auth.Login(ctx, code)
	if err != nil {
		return fmt.Errorf("authentication failed [%s]: %w", angel.Reason(err), err)
	}
	fmt.Println("Authentication successful!")
	fmt.Println("JWT Token:", preview(token))
	return nil
}

// codeNote compares a typed code with the configured secret. A mismatch is
// only reported; the broker decides whether the code is accepted.
func codeNote(code, secret string, at time.Time) string {
	if pkgconfig.IsPlaceholder(secret, credentials.TOTPPlaceholders...) {
		return ""
	}
	if totp.Validate(code, secret, at) {
		return "TOTP matches ANGEL_TOTP_SECRET"
	}
	return "Warning: TOTP does not match ANGEL_TOTP_SECRET (check the device clock or the secret)"
}

func preview(token string) string {
	if len(token) <= 20 {
		return token
	}
	return token[:20] + "..."
}
