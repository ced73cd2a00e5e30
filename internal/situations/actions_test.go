package situations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-workflows/internal/common/config"
	stderrors "insight-workflows/internal/common/errors"
	"insight-workflows/internal/common/logger"
	"insight-workflows/internal/models"
)

func seededStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore()
	store.Register([]models.Situation{
		{
			SituationID: "sit-1",
			KPIName:     "quarterly_revenue",
			Severity:    models.SeverityHigh,
			Description: "Revenue down 20% QoQ",
			CreatedAt:   time.Now().UTC(),
		},
	})
	return store
}

func TestActions_Assign(t *testing.T) {
	store := seededStore(t)
	actions := NewActions(store, nil, 0, logger.NewNoOpLogger())

	got, err := actions.Apply(context.Background(), "sit-1", models.ActionAssign, ActionParams{Target: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", got.AssignedTo)
	assert.Equal(t, models.SituationAssigned, got.Status)
}

func TestActions_Assign_MissingTarget(t *testing.T) {
	actions := NewActions(seededStore(t), nil, 0, logger.NewNoOpLogger())

	_, err := actions.Apply(context.Background(), "sit-1", models.ActionAssign, ActionParams{})
	require.Error(t, err)

	stdErr, ok := stderrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, stderrors.ErrCodeInvalidStageInput, stdErr.Code)
}

func TestActions_Delegate(t *testing.T) {
	actions := NewActions(seededStore(t), nil, 0, logger.NewNoOpLogger())

	got, err := actions.Apply(context.Background(), "sit-1", models.ActionDelegate, ActionParams{Target: "regional-team"})
	require.NoError(t, err)
	assert.Equal(t, "regional-team", got.DelegatedTo)
	assert.Equal(t, models.SituationDelegated, got.Status)
}

func TestActions_Escalate_Increments(t *testing.T) {
	actions := NewActions(seededStore(t), nil, 0, logger.NewNoOpLogger())

	first, err := actions.Apply(context.Background(), "sit-1", models.ActionEscalate, ActionParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.EscalationLevel)

	second, err := actions.Apply(context.Background(), "sit-1", models.ActionEscalate, ActionParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, second.EscalationLevel)
	assert.Equal(t, models.SituationEscalated, second.Status)
}

func TestActions_Snooze(t *testing.T) {
	actions := NewActions(seededStore(t), nil, time.Hour, logger.NewNoOpLogger())

	before := time.Now().UTC()
	got, err := actions.Apply(context.Background(), "sit-1", models.ActionSnooze, ActionParams{SnoozeMs: 60_000})
	require.NoError(t, err)

	require.NotNil(t, got.SnoozedUntil)
	assert.WithinDuration(t, before.Add(time.Minute), *got.SnoozedUntil, 2*time.Second)
	assert.Equal(t, models.SituationSnoozed, got.Status)
}

func TestActions_Snooze_DefaultDuration(t *testing.T) {
	actions := NewActions(seededStore(t), nil, 2*time.Hour, logger.NewNoOpLogger())

	before := time.Now().UTC()
	got, err := actions.Apply(context.Background(), "sit-1", models.ActionSnooze, ActionParams{})
	require.NoError(t, err)

	require.NotNil(t, got.SnoozedUntil)
	assert.WithinDuration(t, before.Add(2*time.Hour), *got.SnoozedUntil, 2*time.Second)
}

func TestActions_UnknownSituation(t *testing.T) {
	actions := NewActions(NewStore(), nil, 0, logger.NewNoOpLogger())

	_, err := actions.Apply(context.Background(), "ghost", models.ActionAssign, ActionParams{Target: "alice"})
	require.Error(t, err)

	stdErr, ok := stderrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, stderrors.ErrCodeSituationNotFound, stdErr.Code)
}

func TestActions_UnknownAction(t *testing.T) {
	actions := NewActions(seededStore(t), nil, 0, logger.NewNoOpLogger())

	_, err := actions.Apply(context.Background(), "sit-1", models.ActionType("archive"), ActionParams{})
	require.Error(t, err)

	stdErr, ok := stderrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, stderrors.ErrCodeInvalidAction, stdErr.Code)
}

type recordingNotifier struct {
	err    error
	calls  int
	target Target
}

func (n *recordingNotifier) Notify(_ context.Context, _ *models.Situation, target Target) error {
	n.calls++
	n.target = target
	return n.err
}

func TestActions_Notify_StampsLastNotified(t *testing.T) {
	notifier := &recordingNotifier{}
	actions := NewActions(seededStore(t), notifier, 0, logger.NewNoOpLogger())

	got, err := actions.Apply(context.Background(), "sit-1", models.ActionNotify,
		ActionParams{Email: "vp@example.com", Phone: "+12025550100"})
	require.NoError(t, err)

	assert.Equal(t, 1, notifier.calls)
	assert.Equal(t, Target{Email: "vp@example.com", Phone: "+12025550100"}, notifier.target)
	require.NotNil(t, got.LastNotifiedAt)
	assert.Equal(t, models.SituationOpen, got.Status, "notify must not change status")
}

func TestActions_Notify_RejectsMalformedContacts(t *testing.T) {
	notifier := &recordingNotifier{}
	actions := NewActions(seededStore(t), notifier, 0, logger.NewNoOpLogger())

	tests := []ActionParams{
		{Email: "not-an-address"},
		{Phone: "12345"},
		{Email: "vp@example.com", Phone: "call me"},
	}
	for _, params := range tests {
		_, err := actions.Apply(context.Background(), "sit-1", models.ActionNotify, params)
		require.Error(t, err, "params %+v must be rejected", params)

		stdErr, ok := stderrors.AsStandardError(err)
		require.True(t, ok)
		assert.Equal(t, stderrors.ErrCodeInvalidStageInput, stdErr.Code)
	}
	assert.Equal(t, 0, notifier.calls, "nothing may be dispatched for malformed contacts")
}

func TestActions_Notify_FailureDoesNotStamp(t *testing.T) {
	notifier := &recordingNotifier{err: stderrors.NewNotificationSendFailedError("email", errors.New("ses throttled"))}
	store := seededStore(t)
	actions := NewActions(store, notifier, 0, logger.NewNoOpLogger())

	_, err := actions.Apply(context.Background(), "sit-1", models.ActionNotify, ActionParams{Email: "vp@example.com"})
	require.Error(t, err)

	stdErr, ok := stderrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, stderrors.ErrCodeNotificationSendFailed, stdErr.Code)

	got, err := store.Get("sit-1")
	require.NoError(t, err)
	assert.Nil(t, got.LastNotifiedAt)
}

type fakeSES struct {
	err   error
	calls []*ses.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	f.calls = append(f.calls, input)
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{}, nil
}

type fakeSNS struct {
	err   error
	calls []*sns.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, input *sns.PublishInput) (*sns.PublishOutput, error) {
	f.calls = append(f.calls, input)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{}, nil
}

func notificationConfig(email, sms bool) config.NotificationConfig {
	var cfg config.NotificationConfig
	cfg.Email.Enabled = email
	cfg.Email.FromEmail = "alerts@example.com"
	cfg.SMS.Enabled = sms
	cfg.SMS.SeverityThreshold = "high"
	cfg.AWS.Region = "eu-west-1"
	return cfg
}

func highSeveritySituation() *models.Situation {
	return &models.Situation{
		SituationID: "sit-9",
		KPIName:     "quarterly_revenue",
		Severity:    models.SeverityHigh,
		Description: "Revenue down 20% QoQ",
	}
}

func TestAWSNotifier_EmailAndSMS(t *testing.T) {
	sesClient := &fakeSES{}
	snsClient := &fakeSNS{}
	notifier := NewAWSNotifier(sesClient, snsClient, notificationConfig(true, true), logger.NewNoOpLogger())

	err := notifier.Notify(context.Background(), highSeveritySituation(),
		Target{Email: "vp@example.com", Phone: "+12025550100"})
	require.NoError(t, err)

	require.Len(t, sesClient.calls, 1)
	assert.Equal(t, "alerts@example.com", *sesClient.calls[0].Source)
	assert.Equal(t, []string{"vp@example.com"}, sesClient.calls[0].Destination.ToAddresses)

	require.Len(t, snsClient.calls, 1)
	assert.Equal(t, "+12025550100", *snsClient.calls[0].PhoneNumber)
}

func TestAWSNotifier_SMSBelowThresholdSkipped(t *testing.T) {
	sesClient := &fakeSES{}
	snsClient := &fakeSNS{}
	notifier := NewAWSNotifier(sesClient, snsClient, notificationConfig(true, true), logger.NewNoOpLogger())

	situation := highSeveritySituation()
	situation.Severity = models.SeverityMedium

	err := notifier.Notify(context.Background(), situation,
		Target{Email: "vp@example.com", Phone: "+12025550100"})
	require.NoError(t, err)

	assert.Len(t, sesClient.calls, 1)
	assert.Empty(t, snsClient.calls)
}

func TestAWSNotifier_DisabledChannelsSkipped(t *testing.T) {
	sesClient := &fakeSES{}
	snsClient := &fakeSNS{}
	notifier := NewAWSNotifier(sesClient, snsClient, notificationConfig(false, false), logger.NewNoOpLogger())

	err := notifier.Notify(context.Background(), highSeveritySituation(),
		Target{Email: "vp@example.com", Phone: "+12025550100"})
	require.NoError(t, err)
	assert.Empty(t, sesClient.calls)
	assert.Empty(t, snsClient.calls)
}

func TestAWSNotifier_SESFailure(t *testing.T) {
	sesClient := &fakeSES{err: errors.New("throttled")}
	notifier := NewAWSNotifier(sesClient, &fakeSNS{}, notificationConfig(true, false), logger.NewNoOpLogger())

	err := notifier.Notify(context.Background(), highSeveritySituation(), Target{Email: "vp@example.com"})
	require.Error(t, err)

	stdErr, ok := stderrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, stderrors.ErrCodeNotificationSendFailed, stdErr.Code)
}
