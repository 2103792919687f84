package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entitlement sizing. Overridden from config at startup, before the server
// accepts requests.
var (
	// FreeCallLimit is the number of free practice calls per identity.
	FreeCallLimit = 3
	// PurchaseCreditAmount is the paid credit balance granted per completed
	// purchase.
	PurchaseCreditAmount = 50
)

// Reason codes for denied access. Stable: clients route on them.
type Reason string

const (
	ReasonFreeUsed  Reason = "free_used"
	ReasonNoCredits Reason = "no_credits"
)

// Entitlement is the per-identity call entitlement state: a free-allowance
// counter and a paid credit balance. A missing row means "free allowance
// available, no paid balance".
type Entitlement struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`

	AnonymousID          string     `json:"anonymousId" gorm:"size:64;uniqueIndex"`
	FreeUsedCount        int        `json:"freeUsedCount" gorm:"default:0"`
	PaidCreditsRemaining int        `json:"paidCreditsRemaining" gorm:"default:0"`
	StripeSessionID      string     `json:"stripeSessionId,omitempty" gorm:"size:255"`
	PurchasedAt          *time.Time `json:"purchasedAt,omitempty"`
}

func (Entitlement) TableName() string {
	return "entitlements"
}

// AccessStatus is the entitlement gate's answer for one identity.
type AccessStatus struct {
	CanSimulate          bool   `json:"canSimulate"`
	HasFreeSim           bool   `json:"hasFreeSim"`
	SimulationsRemaining *int   `json:"simulationsRemaining"`
	HasPaid              bool   `json:"hasPaid"`
	Reason               Reason `json:"reason,omitempty"`
}

// GetEntitlement loads the entitlement row for an identity, returning a zero
// record when none exists.
func GetEntitlement(db *gorm.DB, anonymousID string) (*Entitlement, error) {
	var ent Entitlement
	err := db.Where("anonymous_id = ?", anonymousID).First(&ent).Error
	if err == gorm.ErrRecordNotFound {
		return &Entitlement{AnonymousID: anonymousID}, nil
	}
	return &ent, err
}

// CheckAccess decides whether an identity may start a call. Read-only and
// safe to call on every gated action. A nil db or empty identity degrades
// open: the identity mechanism is best-effort and must never hard-block.
func CheckAccess(db *gorm.DB, anonymousID string) AccessStatus {
	permissive := AccessStatus{CanSimulate: true, HasFreeSim: true}
	if db == nil || anonymousID == "" {
		return permissive
	}

	ent, err := GetEntitlement(db, anonymousID)
	if err != nil {
		return permissive
	}

	freeUsed := ent.FreeUsedCount >= FreeCallLimit
	hasPaid := ent.PurchasedAt != nil
	var remaining *int
	if hasPaid {
		r := ent.PaidCreditsRemaining
		remaining = &r
	}

	if !freeUsed {
		return AccessStatus{
			CanSimulate:          true,
			HasFreeSim:           true,
			SimulationsRemaining: remaining,
			HasPaid:              hasPaid,
		}
	}
	if hasPaid && ent.PaidCreditsRemaining > 0 {
		return AccessStatus{
			CanSimulate:          true,
			SimulationsRemaining: remaining,
			HasPaid:              true,
		}
	}
	if hasPaid {
		return AccessStatus{
			SimulationsRemaining: remaining,
			HasPaid:              true,
			Reason:               ReasonNoCredits,
		}
	}
	return AccessStatus{Reason: ReasonFreeUsed}
}

// ConsumePaidCredit atomically decrements one paid credit. Returns false when
// the balance was already zero; concurrent callers racing on the last credit
// see exactly one success. The balance never goes below zero.
func ConsumePaidCredit(db *gorm.DB, anonymousID string) (bool, error) {
	res := db.Model(&Entitlement{}).
		Where("anonymous_id = ? AND paid_credits_remaining > 0", anonymousID).
		UpdateColumn("paid_credits_remaining", gorm.Expr("paid_credits_remaining - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkFreeCallUsed records one consumed free call for the identity,
// creating the row if needed. The counter stops at the limit.
func MarkFreeCallUsed(db *gorm.DB, anonymousID string) error {
	res := db.Model(&Entitlement{}).
		Where("anonymous_id = ? AND free_used_count < ?", anonymousID, FreeCallLimit).
		UpdateColumn("free_used_count", gorm.Expr("free_used_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// No row yet, or already at the limit. Create-then-retry covers the
	// first-call case; a conflict means another request created it.
	ent := Entitlement{AnonymousID: anonymousID, FreeUsedCount: 1}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "anonymous_id"}},
		DoNothing: true,
	}).Create(&ent).Error
	if err != nil {
		return err
	}
	if ent.ID == 0 {
		// Row existed after all; it is either at the limit or was updated
		// concurrently, both fine.
		db.Model(&Entitlement{}).
			Where("anonymous_id = ? AND free_used_count < ?", anonymousID, FreeCallLimit).
			UpdateColumn("free_used_count", gorm.Expr("free_used_count + 1"))
	}
	return nil
}

// ApplyPurchase credits an identity after a completed checkout. Sets the
// paid balance to the fixed top-up amount; repeat webhook deliveries for the
// same checkout session are idempotent.
func ApplyPurchase(db *gorm.DB, anonymousID, stripeSessionID string) error {
	now := time.Now()
	ent, err := GetEntitlement(db, anonymousID)
	if err != nil {
		return err
	}
	if ent.ID != 0 && ent.StripeSessionID == stripeSessionID && stripeSessionID != "" {
		return nil
	}
	ent.PaidCreditsRemaining = PurchaseCreditAmount
	ent.StripeSessionID = stripeSessionID
	ent.PurchasedAt = &now
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "anonymous_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"paid_credits_remaining", "stripe_session_id", "purchased_at", "updated_at"}),
	}).Create(ent).Error
}
