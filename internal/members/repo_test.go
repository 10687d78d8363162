package members

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/duesengine/pkg/db/dbtest"
)

func TestUpdateProcessorRefsRoundTrip(t *testing.T) {
	ctx := context.Background()
	fx := dbtest.Seed(t, dbtest.New(t))
	member := fx.Member(t, "Payer")
	repo := NewRepository(fx.DB)

	customer := "cus_123"
	card := "pm_456"
	member.StripeCustomerID = &customer
	member.DefaultPaymentMethodID = &card
	if err := repo.UpdateProcessorRefs(ctx, &member); err != nil {
		t.Fatalf("update: %v", err)
	}

	found, err := repo.FindByStripeCustomerID(ctx, customer)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found == nil || found.ID != member.ID {
		t.Fatalf("expected member %s, got %+v", member.ID, found)
	}
	if !found.HasCardOnFile() {
		t.Fatalf("expected card on file")
	}
}

func TestFindByIDCrossTenantReturnsNil(t *testing.T) {
	ctx := context.Background()
	fx := dbtest.Seed(t, dbtest.New(t))
	member := fx.Member(t, "Solo")

	found, err := NewRepository(fx.DB).FindByID(ctx, uuid.New(), member.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found != nil {
		t.Fatalf("expected nil for other tenant, got %+v", found)
	}
}
