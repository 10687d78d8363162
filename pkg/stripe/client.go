package stripe

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/duesengine/pkg/config"
	"github.com/angelmondragon/duesengine/pkg/logger"
)

const defaultCurrency = "usd"

// keyPrefixes lists the secret key kinds accepted per environment, so a live
// key is never used against test data and vice versa.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

// Client holds the validated processor settings billing code needs: which
// product dues prices attach to, the charge currency, and the webhook secret.
type Client struct {
	environment   string
	signingSecret string
	productID     string
	currency      string
}

// NewClient validates cfg and installs the API key on the stripe package.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return nil, fmt.Errorf("stripe environment %q is not test or live", env)
	}

	required := map[string]string{
		"api key":         strings.TrimSpace(cfg.APIKey),
		"webhook secret":  strings.TrimSpace(cfg.WebhookSecret),
		"dues product id": strings.TrimSpace(cfg.DuesProductID),
	}
	for _, name := range []string{"api key", "webhook secret", "dues product id"} {
		if required[name] == "" {
			return nil, fmt.Errorf("stripe %s is required", name)
		}
	}
	if !hasAnyPrefix(required["api key"], prefixes) {
		return nil, fmt.Errorf("stripe %s environment needs a %s key", env, strings.Join(prefixes, " or "))
	}

	stripe.Key = required["api key"]
	stripe.SetAppInfo(&stripe.AppInfo{Name: "duesengine"})

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"stripe_env": env, "currency": currency}), "stripe.configured")
	}
	return &Client{
		environment:   env,
		signingSecret: required["webhook secret"],
		productID:     required["dues product id"],
		currency:      currency,
	}, nil
}

func hasAnyPrefix(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// Accessors tolerate a nil client so optional wiring can pass one through.

// Environment is "test" or "live".
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func (c *Client) DuesProductID() string {
	if c == nil {
		return ""
	}
	return c.productID
}

// Currency is lower-case ISO 4217.
func (c *Client) Currency() string {
	if c == nil {
		return ""
	}
	return c.currency
}
