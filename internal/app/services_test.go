package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/duesengine/internal/payments"
	"github.com/angelmondragon/duesengine/internal/subscriptions/subscriptionstest"
	"github.com/angelmondragon/duesengine/pkg/config"
	"github.com/angelmondragon/duesengine/pkg/db/dbtest"
	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/enums"
	"github.com/angelmondragon/duesengine/pkg/logger"
	pkgredis "github.com/angelmondragon/duesengine/pkg/redis"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.PublicURL = "https://dues.example.org"
	cfg.Billing = config.BillingConfig{
		EligibilityThreshold: 60,
		LapseDays:            7,
		ReminderOffsetsDays:  []int{3, 7, 14},
		MaxReminders:         3,
		CancelMonths:         24,
		SweepBatchSize:       50,
		InviteTTL:            14 * 24 * time.Hour,
	}
	cfg.Cron.SweepCacheTTL = time.Hour
	return cfg
}

func newParams(t *testing.T) (Params, *dbtest.Fixture) {
	t.Helper()
	fx := dbtest.Seed(t, dbtest.New(t))
	mr := miniredis.RunT(t)
	client := pkgredis.NewFromRaw(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	return Params{
		Config:    testConfig(),
		Logger:    logger.New(logger.Options{ServiceName: "app-test"}),
		DB:        fx.DB,
		Redis:     client,
		Processor: &subscriptionstest.Processor{},
	}, fx
}

func TestBuildWiresEveryService(t *testing.T) {
	params, _ := newParams(t)
	svcs, err := Build(params)
	require.NoError(t, err)

	assert.NotNil(t, svcs.Memberships)
	assert.NotNil(t, svcs.Payments)
	assert.NotNil(t, svcs.Payers)
	assert.NotNil(t, svcs.Onboarding)
	assert.NotNil(t, svcs.Overdue)
	assert.NotNil(t, svcs.SweepCache)
	assert.NotNil(t, svcs.Webhooks)
	assert.NotNil(t, svcs.WebhookGuard)
}

func TestBuildRequiresInfrastructure(t *testing.T) {
	params, _ := newParams(t)

	noProcessor := params
	noProcessor.Processor = nil
	_, err := Build(noProcessor)
	assert.Error(t, err)

	noRedis := params
	noRedis.Redis = nil
	_, err = Build(noRedis)
	assert.Error(t, err)
}

func TestBuiltGraphSharesOneDatabase(t *testing.T) {
	params, fx := newParams(t)
	svcs, err := Build(params)
	require.NoError(t, err)

	ctx := context.Background()
	member := fx.Member(t, "Grace")
	membership := fx.Membership(t, member, func(m *models.Membership) {})
	admin := uuid.New()

	_, err = svcs.Payments.Record(ctx, payments.RecordInput{
		OrganizationID: fx.Org.ID,
		MembershipID:   membership.ID,
		Type:           enums.PaymentTypeDues,
		Method:         enums.PaymentMethodCash,
		AmountCents:    fx.Plan.MonthlyDuesCents * 2,
		MonthsCredited: 2,
		RecordedBy:     &admin,
	})
	require.NoError(t, err)

	view, err := svcs.Memberships.Get(ctx, fx.Org.ID, membership.ID)
	require.NoError(t, err)
	assert.Equal(t, membership.PaidMonths+2, view.PaidMonths)
}
