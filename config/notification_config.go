package config

import (
	"context"

	"rescuedispatch/services"

	"github.com/sirupsen/logrus"
)

// InitNotificationService builds the push and SMS channels that have
// credentials. A missing channel is logged and skipped; with neither
// configured notifications are only logged.
func InitNotificationService(ctx context.Context, cfg *Config) *services.NotificationService {
	var push *services.PushService
	if cfg.FirebaseCredentialsPath != "" {
		p, err := services.NewPushService(ctx, cfg.FirebaseCredentialsPath)
		if err != nil {
			logrus.WithError(err).Error("Failed to initialize Firebase messaging, push disabled")
		} else {
			push = p
		}
	} else {
		logrus.Warn("FIREBASE_CREDENTIALS_PATH not set, push disabled")
	}

	var sms *services.SMSService
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioPhoneNumber != "" {
		sms = services.NewSMSService(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber)
	} else {
		logrus.Warn("Twilio credentials not set, SMS disabled")
	}

	return services.NewNotificationService(push, sms)
}
