// internal/situations/actions.go
package situations

import (
	"context"
	"time"

	stderrors "insight-workflows/internal/common/errors"
	"insight-workflows/internal/common/logger"
	"insight-workflows/internal/common/validation"
	"insight-workflows/internal/models"
)

const defaultSnooze = 4 * time.Hour

// ActionParams carries the per-action payload. Fields are action-specific;
// unused fields are ignored.
type ActionParams struct {
	Target    string `json:"target,omitempty"`     // assign/delegate
	SnoozeMs  int64  `json:"snooze_ms,omitempty"`  // snooze
	Email     string `json:"email,omitempty"`      // notify
	Phone     string `json:"phone,omitempty"`      // notify
}

// Actions applies human decisions to materialized situations. All actions
// except notify are local mutations and cannot fail upstream.
type Actions struct {
	store         *Store
	notifier      Notifier
	snoozeDefault time.Duration
	logger        logger.Logger
}

func NewActions(store *Store, notifier Notifier, snoozeDefault time.Duration, log logger.Logger) *Actions {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	if snoozeDefault <= 0 {
		snoozeDefault = defaultSnooze
	}
	return &Actions{
		store:         store,
		notifier:      notifier,
		snoozeDefault: snoozeDefault,
		logger:        log.WithFields(map[string]interface{}{"component": "situation-actions"}),
	}
}

// Apply runs one action against a situation and returns the updated record.
func (a *Actions) Apply(ctx context.Context, situationID string, action models.ActionType, params ActionParams) (*models.Situation, error) {
	switch action {
	case models.ActionAssign:
		return a.assign(situationID, params)
	case models.ActionDelegate:
		return a.delegate(situationID, params)
	case models.ActionEscalate:
		return a.escalate(situationID)
	case models.ActionSnooze:
		return a.snooze(situationID, params)
	case models.ActionNotify:
		return a.notify(ctx, situationID, params)
	default:
		return nil, stderrors.NewInvalidActionError(string(action))
	}
}

func (a *Actions) assign(situationID string, params ActionParams) (*models.Situation, error) {
	if params.Target == "" {
		return nil, stderrors.NewInvalidStageInputError("assign requires a target")
	}
	return a.store.update(situationID, func(sit *models.Situation) error {
		sit.AssignedTo = params.Target
		sit.Status = models.SituationAssigned
		return nil
	})
}

func (a *Actions) delegate(situationID string, params ActionParams) (*models.Situation, error) {
	if params.Target == "" {
		return nil, stderrors.NewInvalidStageInputError("delegate requires a target")
	}
	return a.store.update(situationID, func(sit *models.Situation) error {
		sit.DelegatedTo = params.Target
		sit.Status = models.SituationDelegated
		return nil
	})
}

func (a *Actions) escalate(situationID string) (*models.Situation, error) {
	return a.store.update(situationID, func(sit *models.Situation) error {
		sit.EscalationLevel++
		sit.Status = models.SituationEscalated
		return nil
	})
}

func (a *Actions) snooze(situationID string, params ActionParams) (*models.Situation, error) {
	duration := a.snoozeDefault
	if params.SnoozeMs > 0 {
		duration = time.Duration(params.SnoozeMs) * time.Millisecond
	}
	until := time.Now().UTC().Add(duration)

	return a.store.update(situationID, func(sit *models.Situation) error {
		sit.SnoozedUntil = &until
		sit.Status = models.SituationSnoozed
		return nil
	})
}

// notify dispatches through the notifier first; the situation is only
// stamped once the send succeeded.
func (a *Actions) notify(ctx context.Context, situationID string, params ActionParams) (*models.Situation, error) {
	if params.Email != "" && !validation.ValidateEmail(params.Email) {
		return nil, stderrors.NewInvalidStageInputError("notify email is not a valid address")
	}
	if params.Phone != "" && !validation.ValidatePhone(params.Phone) {
		return nil, stderrors.NewInvalidStageInputError("notify phone is not a valid number")
	}

	situation, err := a.store.Get(situationID)
	if err != nil {
		return nil, err
	}

	target := Target{Email: params.Email, Phone: params.Phone}
	if err := a.notifier.Notify(ctx, situation, target); err != nil {
		a.logger.Error("notification dispatch failed", map[string]interface{}{
			"situationId": situationID,
			"error":       err.Error(),
		})
		return nil, err
	}

	now := time.Now().UTC()
	return a.store.update(situationID, func(sit *models.Situation) error {
		sit.LastNotifiedAt = &now
		return nil
	})
}
