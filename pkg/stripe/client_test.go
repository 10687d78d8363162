package stripe

import (
	"context"
	"testing"

	"github.com/angelmondragon/duesengine/pkg/config"
)

func TestNewClientValidatesKeyAgainstEnvironment(t *testing.T) {
	base := config.StripeConfig{WebhookSecret: "whsec_1", DuesProductID: "prod_1"}
	tests := []struct {
		name    string
		env     string
		key     string
		wantErr bool
	}{
		{name: "test key in test", env: "test", key: "sk_test_abc"},
		{name: "restricted live key", env: "live", key: "rk_live_abc"},
		{name: "live key in test", env: "test", key: "sk_live_abc", wantErr: true},
		{name: "unknown env", env: "staging", key: "sk_test_abc", wantErr: true},
		{name: "missing key", env: "test", key: "", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			cfg.Env = tc.env
			cfg.APIKey = tc.key
			_, err := NewClient(context.Background(), cfg, nil)
			if (err != nil) != tc.wantErr {
				t.Fatalf("wantErr=%v got %v", tc.wantErr, err)
			}
		})
	}
}

func TestNewClientRequiresWebhookSecretAndProduct(t *testing.T) {
	if _, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_1", DuesProductID: "prod"}, nil); err == nil {
		t.Fatalf("expected missing webhook secret error")
	}
	if _, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_1", WebhookSecret: "whsec"}, nil); err == nil {
		t.Fatalf("expected missing product error")
	}
	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_1", WebhookSecret: "whsec", DuesProductID: "prod", Currency: "USD"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Currency() != "usd" || client.Environment() != "test" {
		t.Fatalf("unexpected client %+v", client)
	}
}

func TestNilClientAccessors(t *testing.T) {
	var c *Client
	if c.SigningSecret() != "" || c.Currency() != "" || c.DuesProductID() != "" || c.Environment() != "" {
		t.Fatalf("nil client should report empty settings")
	}
}
