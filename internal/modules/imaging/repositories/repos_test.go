package repositories

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/models"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/shared/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "imaging.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.GORM.AutoMigrate(&models.Generation{}, &models.BillingPlan{}, &models.Subscription{}))
	return db.GORM
}

func TestGenerationRepo(t *testing.T) {
	repo := NewGenerationRepo(newTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		gen := &models.Generation{UserID: "u1", Kind: models.KindGenerate, Prompt: "a cat", N: 1}
		require.NoError(t, gen.SetResults([]models.GenerationResult{{URL: "https://cdn/x.png", Path: "x.png"}}))
		require.NoError(t, repo.Create(ctx, gen))
	}
	require.NoError(t, repo.Create(ctx, &models.Generation{UserID: "u2", Kind: models.KindEdit, Prompt: "a dog"}))

	list, err := repo.ListByUser(ctx, "u1", 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	results, err := list[0].DecodeResults()
	require.NoError(t, err)
	assert.Equal(t, "x.png", results[0].Path)

	list, err = repo.ListByUser(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPlanRepoDefaultsAndLookup(t *testing.T) {
	db := newTestDB(t)
	plans := NewPlanRepo(db)
	ctx := context.Background()

	require.NoError(t, plans.EnsureDefaults(ctx, models.DefaultPlans()))
	require.NoError(t, plans.EnsureDefaults(ctx, models.DefaultPlans()))

	active, err := plans.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, models.FreePlanSlug, active[0].Slug)

	pro, err := plans.GetBySlug(ctx, "pro")
	require.NoError(t, err)
	require.NotNil(t, pro)

	byID, err := plans.GetByID(ctx, pro.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pro", byID.Name)

	missing, err := plans.GetBySlug(ctx, "enterprise")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSubscriptionRepo(t *testing.T) {
	db := newTestDB(t)
	plans := NewPlanRepo(db)
	subs := NewSubscriptionRepo(db)
	ctx := context.Background()

	require.NoError(t, plans.EnsureDefaults(ctx, models.DefaultPlans()))
	starter, _ := plans.GetBySlug(ctx, "starter")
	pro, _ := plans.GetBySlug(ctx, "pro")
	free, _ := plans.GetBySlug(ctx, models.FreePlanSlug)

	require.NoError(t, subs.Create(ctx, &models.Subscription{UserID: "alice", PlanID: starter.ID, Status: models.SubscriptionActive}))
	require.NoError(t, subs.Create(ctx, &models.Subscription{UserID: "alice", PlanID: pro.ID, Status: models.SubscriptionTrialing}))
	require.NoError(t, subs.Create(ctx, &models.Subscription{UserID: "bob", PlanID: starter.ID, Status: models.SubscriptionCanceled}))
	require.NoError(t, subs.Create(ctx, &models.Subscription{UserID: "carol", PlanID: free.ID, Status: models.SubscriptionActive}))
	require.NoError(t, subs.Create(ctx, &models.Subscription{UserID: "dave", PlanID: starter.ID, Status: models.SubscriptionPastDue}))

	cur, err := subs.GetCurrent(ctx, "dave")
	require.NoError(t, err)
	require.NotNil(t, cur, "past_due still grants the plan")
	assert.Equal(t, starter.ID, cur.PlanID)

	cur, err = subs.GetCurrent(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, cur)

	targets, err := subs.ListTopupTargets(ctx)
	require.NoError(t, err)
	require.Len(t, targets, 1, "canceled, past_due and zero-credit plans are skipped")
	assert.Equal(t, models.TopupTarget{UserID: "alice", PlanSlug: "pro", CreditsMonthly: 200}, targets[0])
}
