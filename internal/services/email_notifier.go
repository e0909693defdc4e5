package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/estateway/gatekeeper/internal/credentials"
	"github.com/estateway/gatekeeper/internal/models"
)

// SESAlertNotifier emails security alerts to the affected user via
// AWS SES. Only alert types worth interrupting a user for are sent;
// the rest stay in-app.
type SESAlertNotifier struct {
	sesClient   *ses.Client
	directory   credentials.UserDirectory
	fromAddress string
	logger      *slog.Logger
}

// NewSESAlertNotifier creates a new SES-backed alert notifier
func NewSESAlertNotifier(region, fromAddress string, directory credentials.UserDirectory, logger *slog.Logger) (*SESAlertNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESAlertNotifier{
		sesClient:   ses.NewFromConfig(cfg),
		directory:   directory,
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

var notifiableAlerts = map[string]string{
	models.AlertTypeAccountLocked:    "Your account was temporarily locked",
	models.AlertTypeMultipleSessions: "Your account is signed in on multiple devices",
	models.AlertTypeNewDevice:        "New sign-in to your account",
}

// Notify sends the alert by email. Failures are logged and dropped;
// the in-app alert already exists.
func (n *SESAlertNotifier) Notify(ctx context.Context, alert *models.SecurityAlert) {
	subject, ok := notifiableAlerts[alert.AlertType]
	if !ok || alert.UserID == nil {
		return
	}

	user, err := n.directory.GetByID(ctx, *alert.UserID)
	if err != nil {
		n.logger.Error("failed to resolve alert recipient",
			slog.String("alert_type", alert.AlertType),
			slog.Any("error", err))
		return
	}

	location := "an unknown location"
	if !alert.Geolocation.Unknown() {
		location = alert.Geolocation.City + ", " + alert.Geolocation.Country
	}

	body := fmt.Sprintf(
		"Hi %s,\n\n%s\n\nAddress: %s\nLocation: %s\n\nIf this was you, no action is needed. "+
			"If you don't recognize this activity, review your active sessions and sign out of the devices you don't recognize.\n\n"+
			"— The Estateway security team\n",
		user.Name, alert.Message, alert.IPAddress, location,
	)

	_, err = n.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{user.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		n.logger.Error("failed to send alert email",
			slog.String("alert_type", alert.AlertType),
			slog.Any("error", err))
		return
	}

	n.logger.Info("alert email sent", slog.String("alert_type", alert.AlertType))
}
