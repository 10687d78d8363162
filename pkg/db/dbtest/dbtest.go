// Package dbtest opens isolated sqlite databases with the dues schema for tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/enums"
)

// New returns a migrated in-memory database private to the calling test.
func New(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// Fixture is a seeded organization with one plan.
type Fixture struct {
	DB   *gorm.DB
	Org  models.Organization
	Plan models.Plan
}

// Seed creates an organization and a plan priced at 50/285/540 dollars.
func Seed(t *testing.T, conn *gorm.DB) *Fixture {
	t.Helper()
	org := models.Organization{Name: "Gardeners Mutual", Slug: "gm-" + uuid.NewString()[:8], PlatformFeeBps: 100}
	if err := conn.Create(&org).Error; err != nil {
		t.Fatalf("seed organization: %v", err)
	}
	plan := models.Plan{
		OrganizationID:     org.ID,
		Name:               "Standard",
		MonthlyDuesCents:   5000,
		BiannualDuesCents:  28500,
		AnnualDuesCents:    54000,
		EnrollmentFeeCents: 10000,
		Active:             true,
	}
	if err := conn.Create(&plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return &Fixture{DB: conn, Org: org, Plan: plan}
}

// Member creates a member in the fixture organization.
func (f *Fixture) Member(t *testing.T, first string) models.Member {
	t.Helper()
	member := models.Member{
		OrganizationID: f.Org.ID,
		FirstName:      first,
		LastName:       "Tester",
		Email:          strings.ToLower(first) + "@example.org",
	}
	if err := f.DB.Create(&member).Error; err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return member
}

// Membership creates a membership for member; mutate adjusts defaults before insert.
func (f *Fixture) Membership(t *testing.T, member models.Member, mutate func(*models.Membership)) models.Membership {
	t.Helper()
	m := models.Membership{
		OrganizationID:        f.Org.ID,
		MemberID:              member.ID,
		PlanID:                f.Plan.ID,
		Status:                enums.MembershipStatusWaitingPeriod,
		EnrollmentFeeStatus:   enums.EnrollmentFeeStatusPaid,
		BillingFrequency:      enums.BillingFrequencyMonthly,
		BillingAnniversaryDay: 1,
		CreatedAt:             time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if mutate != nil {
		mutate(&m)
	}
	if err := f.DB.Create(&m).Error; err != nil {
		t.Fatalf("seed membership: %v", err)
	}
	return m
}
