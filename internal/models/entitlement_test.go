package models

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupEntitlementTestDB(t *testing.T) *gorm.DB {
	return setupTestDBWithSilentLogger(t, &Entitlement{}, &CallRecord{})
}

func TestEntitlement_TableName(t *testing.T) {
	var ent Entitlement
	assert.Equal(t, "entitlements", ent.TableName())
}

func TestGetEntitlement_NotExists(t *testing.T) {
	db := setupEntitlementTestDB(t)

	ent, err := GetEntitlement(db, "anon-1")
	require.NoError(t, err)
	assert.Equal(t, "anon-1", ent.AnonymousID)
	assert.Equal(t, 0, ent.FreeUsedCount)
	assert.Equal(t, 0, ent.PaidCreditsRemaining)
	assert.Nil(t, ent.PurchasedAt)
}

func TestCheckAccess_NoStore(t *testing.T) {
	access := CheckAccess(nil, "anon-1")
	assert.True(t, access.CanSimulate)
	assert.True(t, access.HasFreeSim)
	assert.Nil(t, access.SimulationsRemaining)
	assert.False(t, access.HasPaid)
}

func TestCheckAccess_NoIdentity(t *testing.T) {
	db := setupEntitlementTestDB(t)

	access := CheckAccess(db, "")
	assert.True(t, access.CanSimulate)
	assert.True(t, access.HasFreeSim)
}

func TestCheckAccess_FreeAllowanceRemaining(t *testing.T) {
	db := setupEntitlementTestDB(t)

	err := db.Create(&Entitlement{AnonymousID: "anon-1", FreeUsedCount: 2}).Error
	require.NoError(t, err)

	access := CheckAccess(db, "anon-1")
	assert.True(t, access.CanSimulate)
	assert.True(t, access.HasFreeSim)
	assert.False(t, access.HasPaid)
	assert.Nil(t, access.SimulationsRemaining)
	assert.Empty(t, access.Reason)
}

func TestCheckAccess_FreeUsed(t *testing.T) {
	db := setupEntitlementTestDB(t)

	err := db.Create(&Entitlement{AnonymousID: "anon-1", FreeUsedCount: FreeCallLimit}).Error
	require.NoError(t, err)

	access := CheckAccess(db, "anon-1")
	assert.False(t, access.CanSimulate)
	assert.False(t, access.HasFreeSim)
	assert.Equal(t, ReasonFreeUsed, access.Reason)
}

func TestCheckAccess_PaidCredits(t *testing.T) {
	db := setupEntitlementTestDB(t)

	now := time.Now()
	err := db.Create(&Entitlement{
		AnonymousID:          "anon-1",
		FreeUsedCount:        FreeCallLimit,
		PaidCreditsRemaining: 10,
		PurchasedAt:          &now,
	}).Error
	require.NoError(t, err)

	access := CheckAccess(db, "anon-1")
	assert.True(t, access.CanSimulate)
	assert.True(t, access.HasPaid)
	require.NotNil(t, access.SimulationsRemaining)
	assert.Equal(t, 10, *access.SimulationsRemaining)
}

func TestCheckAccess_PaidExhausted(t *testing.T) {
	db := setupEntitlementTestDB(t)

	now := time.Now()
	err := db.Create(&Entitlement{
		AnonymousID:          "anon-1",
		FreeUsedCount:        FreeCallLimit,
		PaidCreditsRemaining: 0,
		PurchasedAt:          &now,
	}).Error
	require.NoError(t, err)

	access := CheckAccess(db, "anon-1")
	assert.False(t, access.CanSimulate)
	assert.True(t, access.HasPaid)
	assert.Equal(t, ReasonNoCredits, access.Reason)
	require.NotNil(t, access.SimulationsRemaining)
	assert.Equal(t, 0, *access.SimulationsRemaining)
}

func TestConsumePaidCredit(t *testing.T) {
	db := setupEntitlementTestDB(t)

	now := time.Now()
	err := db.Create(&Entitlement{
		AnonymousID:          "anon-1",
		PaidCreditsRemaining: 2,
		PurchasedAt:          &now,
	}).Error
	require.NoError(t, err)

	ok, err := ConsumePaidCredit(db, "anon-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ConsumePaidCredit(db, "anon-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Balance is 0 now; further decrements must fail and never go negative.
	ok, err = ConsumePaidCredit(db, "anon-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ent, err := GetEntitlement(db, "anon-1")
	require.NoError(t, err)
	assert.Equal(t, 0, ent.PaidCreditsRemaining)
}

func TestConsumePaidCredit_NoRecord(t *testing.T) {
	db := setupEntitlementTestDB(t)

	ok, err := ConsumePaidCredit(db, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsumePaidCredit_Concurrent(t *testing.T) {
	db := setupEntitlementTestDB(t)

	now := time.Now()
	err := db.Create(&Entitlement{
		AnonymousID:          "anon-1",
		PaidCreditsRemaining: 1,
		PurchasedAt:          &now,
	}).Error
	require.NoError(t, err)

	// Two racing session starts on a balance of 1: exactly one wins.
	const workers = 2
	results := make([]bool, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = ConsumePaidCredit(db, "anon-1")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	successes := 0
	for _, ok := range results {
		if ok {
			successes++
		}
	}
	assert.Equal(t, 1, successes)

	ent, err := GetEntitlement(db, "anon-1")
	require.NoError(t, err)
	assert.Equal(t, 0, ent.PaidCreditsRemaining)
}

func TestMarkFreeCallUsed(t *testing.T) {
	db := setupEntitlementTestDB(t)

	// First call creates the row.
	require.NoError(t, MarkFreeCallUsed(db, "anon-1"))
	ent, err := GetEntitlement(db, "anon-1")
	require.NoError(t, err)
	assert.Equal(t, 1, ent.FreeUsedCount)

	// Counter advances up to the limit and stops.
	require.NoError(t, MarkFreeCallUsed(db, "anon-1"))
	require.NoError(t, MarkFreeCallUsed(db, "anon-1"))
	require.NoError(t, MarkFreeCallUsed(db, "anon-1"))
	ent, err = GetEntitlement(db, "anon-1")
	require.NoError(t, err)
	assert.Equal(t, FreeCallLimit, ent.FreeUsedCount)
}

func TestConfiguredLimits(t *testing.T) {
	db := setupEntitlementTestDB(t)

	prevLimit, prevCredits := FreeCallLimit, PurchaseCreditAmount
	FreeCallLimit = 1
	PurchaseCreditAmount = 5
	defer func() {
		FreeCallLimit, PurchaseCreditAmount = prevLimit, prevCredits
	}()

	require.NoError(t, MarkFreeCallUsed(db, "anon-1"))
	access := CheckAccess(db, "anon-1")
	assert.False(t, access.CanSimulate)
	assert.Equal(t, ReasonFreeUsed, access.Reason)

	require.NoError(t, ApplyPurchase(db, "anon-1", "cs_123"))
	ent, err := GetEntitlement(db, "anon-1")
	require.NoError(t, err)
	assert.Equal(t, 5, ent.PaidCreditsRemaining)
}

func TestApplyPurchase(t *testing.T) {
	db := setupEntitlementTestDB(t)

	require.NoError(t, ApplyPurchase(db, "anon-1", "cs_123"))

	ent, err := GetEntitlement(db, "anon-1")
	require.NoError(t, err)
	assert.Equal(t, PurchaseCreditAmount, ent.PaidCreditsRemaining)
	assert.Equal(t, "cs_123", ent.StripeSessionID)
	require.NotNil(t, ent.PurchasedAt)
}

func TestApplyPurchase_ExistingRecord(t *testing.T) {
	db := setupEntitlementTestDB(t)

	err := db.Create(&Entitlement{AnonymousID: "anon-1", FreeUsedCount: 3}).Error
	require.NoError(t, err)

	require.NoError(t, ApplyPurchase(db, "anon-1", "cs_456"))

	ent, err := GetEntitlement(db, "anon-1")
	require.NoError(t, err)
	assert.Equal(t, 3, ent.FreeUsedCount)
	assert.Equal(t, PurchaseCreditAmount, ent.PaidCreditsRemaining)

	// Access flips back on after the purchase.
	access := CheckAccess(db, "anon-1")
	assert.True(t, access.CanSimulate)
	assert.True(t, access.HasPaid)
}

func TestApplyPurchase_DuplicateWebhook(t *testing.T) {
	db := setupEntitlementTestDB(t)

	require.NoError(t, ApplyPurchase(db, "anon-1", "cs_123"))
	ok, err := ConsumePaidCredit(db, "anon-1")
	require.NoError(t, err)
	require.True(t, ok)

	// Stripe redelivers the same event; the balance must not reset.
	require.NoError(t, ApplyPurchase(db, "anon-1", "cs_123"))

	ent, err := GetEntitlement(db, "anon-1")
	require.NoError(t, err)
	assert.Equal(t, PurchaseCreditAmount-1, ent.PaidCreditsRemaining)
}

func TestFreeThenPaidScenario(t *testing.T) {
	db := setupEntitlementTestDB(t)

	// Two of three free calls used.
	require.NoError(t, MarkFreeCallUsed(db, "anon-1"))
	require.NoError(t, MarkFreeCallUsed(db, "anon-1"))

	access := CheckAccess(db, "anon-1")
	assert.True(t, access.CanSimulate)
	assert.True(t, access.HasFreeSim)

	// Third call completes; free tier is exhausted.
	require.NoError(t, MarkFreeCallUsed(db, "anon-1"))

	access = CheckAccess(db, "anon-1")
	assert.False(t, access.CanSimulate)
	assert.Equal(t, ReasonFreeUsed, access.Reason)
}
