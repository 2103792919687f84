// Package broker issues session credentials for validated callers. It is the
// server-side authority: entitlement is re-checked here regardless of what an
// earlier page load saw, and paid credits are debited atomically before any
// credential is minted.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/FeliciaLa/coldcall-pro/internal/models"
	"github.com/FeliciaLa/coldcall-pro/pkg/realtime"
	"github.com/FeliciaLa/coldcall-pro/pkg/scenario"
	"gorm.io/gorm"
)

// ErrNotConfigured means the realtime provider credentials are absent.
var ErrNotConfigured = errors.New("broker: realtime provider not configured")

// BadScenarioError rejects an unknown scenario id.
type BadScenarioError struct {
	ID string
}

func (e *BadScenarioError) Error() string {
	return fmt.Sprintf("broker: unknown scenario %q", e.ID)
}

// EntitlementError rejects a caller whose entitlement is exhausted.
type EntitlementError struct {
	Reason models.Reason
}

func (e *EntitlementError) Error() string {
	return "broker: entitlement exhausted: " + string(e.Reason)
}

// SecretMinter mints session-scoped credentials from the speech provider.
type SecretMinter interface {
	CreateClientSecret(ctx context.Context, req realtime.SessionRequest) (string, error)
}

// Session is the issued credential plus the config the client connects with.
type Session struct {
	Credential string `json:"token"`
	Model      string `json:"model"`
	Voice      string `json:"voice"`
}

type Broker struct {
	db     *gorm.DB
	minter SecretMinter
	model  string
}

func New(db *gorm.DB, minter SecretMinter, model string) *Broker {
	return &Broker{db: db, minter: minter, model: model}
}

// CreateSession validates entitlement for the identity, debits a paid credit
// when the caller is past the free tier, and mints a single-session
// credential parameterized by the scenario's persona.
//
// Free-tier calls are not debited here; the free counter advances when the
// call finishes. That leaves a window where parallel tabs can each start a
// free call — accepted. The paid path has no such window: the decrement
// happens before the credential exists, and a failed decrement (race on the
// last credit) fails the whole request.
func (b *Broker) CreateSession(ctx context.Context, anonymousID, scenarioID string) (*Session, error) {
	sc, err := scenario.Get(scenarioID)
	if err != nil {
		return nil, &BadScenarioError{ID: scenarioID}
	}

	access := models.CheckAccess(b.db, anonymousID)
	if !access.CanSimulate {
		return nil, &EntitlementError{Reason: access.Reason}
	}

	if b.minter == nil {
		return nil, ErrNotConfigured
	}

	if !access.HasFreeSim && access.HasPaid && b.db != nil && anonymousID != "" {
		ok, err := models.ConsumePaidCredit(b.db, anonymousID)
		if err != nil {
			return nil, fmt.Errorf("broker: debit credit: %w", err)
		}
		if !ok {
			// Another request took the last credit between the check and
			// the debit.
			return nil, &EntitlementError{Reason: models.ReasonNoCredits}
		}
	}

	credential, err := b.minter.CreateClientSecret(ctx, realtime.SessionRequest{
		Model:        b.model,
		Instructions: scenario.SessionInstructions(sc),
		Voice:        sc.Voice,
		VAD:          realtime.DefaultVAD,
	})
	if err != nil {
		return nil, err
	}

	return &Session{Credential: credential, Model: b.model, Voice: sc.Voice}, nil
}
