// Package notify sends a single expiry reminder over one channel. Which
// channels fire for a given severity is the sweep's decision, not this
// package's.
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"visa-tracker/internal/common/errors"
	"visa-tracker/internal/common/logger"
	"visa-tracker/internal/common/metrics"
	"visa-tracker/internal/expiry"
	"visa-tracker/internal/models"
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Config struct {
	FromEmail     string
	SimulateVoice bool
}

type Dispatcher struct {
	config    *Config
	logger    logger.Logger
	sesClient SESService
	snsClient SNSService
}

func NewDispatcher(config *Config, sesClient SESService, snsClient SNSService, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		config:    config,
		logger:    log.WithFields(map[string]interface{}{"component": "dispatcher"}),
		sesClient: sesClient,
		snsClient: snsClient,
	}
}

// SendExpiryEmail composes the fixed reminder template and hands it to SES.
// Transport failures come back as DELIVERY_FAILED; this method never panics
// past its boundary.
func (d *Dispatcher) SendExpiryEmail(ctx context.Context, user *models.User, a expiry.Assessment) error {
	subject := "Visa Expiry Reminder"
	body := fmt.Sprintf(
		"Hello %s,\n\nYour H1B visa has %d day(s) remaining and expires on %s. "+
			"Please take action to renew or extend your visa before the expiry date.\n\n"+
			"Visa Tracker",
		user.Name, a.DaysRemaining, a.ExpiryDate.Format("2006-01-02"),
	)

	_, err := d.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{user.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
				Html: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(d.config.FromEmail),
	})
	if err != nil {
		d.logger.Error("email send failed", map[string]interface{}{
			"error":  err,
			"userId": user.ID,
		})
		metrics.NotificationsFailed.WithLabelValues(models.ChannelEmail).Inc()
		return errors.NewDeliveryFailedError(models.ChannelEmail, err)
	}

	metrics.NotificationsDispatched.WithLabelValues(models.ChannelEmail, string(a.Tier)).Inc()
	return nil
}

// SendVoiceAlert composes the fixed spoken-message template and places the
// call through SNS. When telephony is not configured the transport is
// simulated: the message is logged and the call reported as delivered.
func (d *Dispatcher) SendVoiceAlert(ctx context.Context, user *models.User, a expiry.Assessment) error {
	message := fmt.Sprintf(
		"Hello %s. This is an important reminder from Visa Tracker. "+
			"Your H1B visa has %d day(s) remaining. Please take immediate action.",
		user.Name, a.DaysRemaining,
	)

	if d.config.SimulateVoice {
		d.logger.Info("voice alert simulated", map[string]interface{}{
			"userId":  user.ID,
			"phone":   user.Phone,
			"message": message,
		})
		metrics.NotificationsDispatched.WithLabelValues(models.ChannelCall, string(a.Tier)).Inc()
		return nil
	}

	_, err := d.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(user.Phone),
		Message:     aws.String(message),
	})
	if err != nil {
		d.logger.Error("voice alert failed", map[string]interface{}{
			"error":  err,
			"userId": user.ID,
		})
		metrics.NotificationsFailed.WithLabelValues(models.ChannelCall).Inc()
		return errors.NewDeliveryFailedError(models.ChannelCall, err)
	}

	metrics.NotificationsDispatched.WithLabelValues(models.ChannelCall, string(a.Tier)).Inc()
	return nil
}
