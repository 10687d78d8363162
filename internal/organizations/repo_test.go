package organizations

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/duesengine/pkg/db/dbtest"
	"github.com/angelmondragon/duesengine/pkg/db/models"
)

func TestListIDsPagesInOrder(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	var created []uuid.UUID
	for i := 0; i < 3; i++ {
		org := models.Organization{Name: "Org", Slug: uuid.NewString()}
		require.NoError(t, conn.Create(&org).Error)
		created = append(created, org.ID)
	}
	repo := NewRepository(conn)

	first, err := repo.ListIDs(ctx, uuid.Nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	rest, err := repo.ListIDs(ctx, first[1], 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)

	assert.ElementsMatch(t, created, append(first, rest...))
}

func TestFindPlanIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	fx := dbtest.Seed(t, dbtest.New(t))
	repo := NewRepository(fx.DB)

	plan, err := repo.FindPlan(ctx, fx.Org.ID, fx.Plan.ID)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, int64(5000), plan.MonthlyDuesCents)

	plan, err = repo.FindPlan(ctx, uuid.New(), fx.Plan.ID)
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestFeePolicy(t *testing.T) {
	policy := FeePolicy(models.Organization{PassFeesToMember: true, PlatformFeeBps: 150})
	assert.True(t, policy.PassFeesToMember)
	assert.Equal(t, 150, policy.PlatformFeeBps)
}
