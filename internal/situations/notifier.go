// internal/situations/notifier.go
package situations

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"insight-workflows/internal/common/config"
	stderrors "insight-workflows/internal/common/errors"
	"insight-workflows/internal/common/logger"
	"insight-workflows/internal/models"
)

// Target names who a notification goes to. Either field may be empty; the
// notifier only uses the channels that are both enabled and addressed.
type Target struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, situation *models.Situation, target Target) error
}

type sesAPI interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

type snsAPI interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// AWSNotifier sends email through SES and SMS through SNS, each gated by
// config. SMS additionally requires the situation's severity to reach the
// configured threshold.
type AWSNotifier struct {
	ses    sesAPI
	sns    snsAPI
	cfg    config.NotificationConfig
	logger logger.Logger
}

func NewAWSNotifier(sesClient sesAPI, snsClient snsAPI, cfg config.NotificationConfig, log logger.Logger) *AWSNotifier {
	return &AWSNotifier{
		ses:    sesClient,
		sns:    snsClient,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "notifier"}),
	}
}

func (n *AWSNotifier) Notify(ctx context.Context, situation *models.Situation, target Target) error {
	sent := 0

	if n.cfg.Email.Enabled && target.Email != "" {
		if err := n.sendEmail(ctx, situation, target.Email); err != nil {
			return stderrors.NewNotificationSendFailedError("email", err)
		}
		sent++
	}

	if n.cfg.SMS.Enabled && target.Phone != "" && n.severityReachesSMSThreshold(situation.Severity) {
		if err := n.sendSMS(ctx, situation, target.Phone); err != nil {
			return stderrors.NewNotificationSendFailedError("sms", err)
		}
		sent++
	}

	if sent == 0 {
		n.logger.Warn("notify resolved to no channel", map[string]interface{}{
			"situationId": situation.SituationID,
			"severity":    string(situation.Severity),
		})
	}
	return nil
}

func (n *AWSNotifier) severityReachesSMSThreshold(severity models.Severity) bool {
	threshold := models.Severity(n.cfg.SMS.SeverityThreshold)
	if threshold == "" {
		threshold = models.SeverityHigh
	}
	return severity.Rank() >= threshold.Rank()
}

func (n *AWSNotifier) sendEmail(ctx context.Context, situation *models.Situation, to string) error {
	subject := fmt.Sprintf("[%s] Situation on %s", situation.Severity, situation.KPIName)
	body := situationMessage(situation)

	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Source:      awssdk.String(n.cfg.Email.FromEmail),
		Destination: &sestypes.Destination{ToAddresses: []string{to}},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: awssdk.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: awssdk.String(body)},
			},
		},
	})
	return err
}

func (n *AWSNotifier) sendSMS(ctx context.Context, situation *models.Situation, phone string) error {
	_, err := n.sns.Publish(ctx, &sns.PublishInput{
		PhoneNumber: awssdk.String(phone),
		Message:     awssdk.String(situationMessage(situation)),
	})
	return err
}

func situationMessage(situation *models.Situation) string {
	msg := fmt.Sprintf("%s severity situation %s on KPI %s: %s",
		situation.Severity, situation.SituationID, situation.KPIName, situation.Description)
	if situation.KPIValue != nil {
		msg += fmt.Sprintf(" (current: %.2f %s)", situation.KPIValue.Value, situation.KPIValue.Unit)
	}
	return msg
}

// NoopNotifier is used when no notification channel is configured.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, *models.Situation, Target) error { return nil }
