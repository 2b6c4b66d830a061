package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rescuedispatch/models"
	"rescuedispatch/utils"

	"github.com/sirupsen/logrus"
)

type pushSender interface {
	SendToDevices(ctx context.Context, tokens []string, notification PushNotification) (PushResult, error)
}

type smsSender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// NotificationService fans alert notifications out over FCM push and Twilio
// SMS. Either channel may be absent, in which case the notification is only
// logged. Delivery is best effort.
type NotificationService struct {
	push pushSender
	sms  smsSender
}

func NewNotificationService(push *PushService, sms *SMSService) *NotificationService {
	ns := &NotificationService{}
	if push != nil {
		ns.push = push
	}
	if sms != nil {
		ns.sms = sms
	}
	return ns
}

// NotifyResponders pushes to every responder with a device token. Responders
// without one, or every responder when the alert was raised over SMS, get a
// text message instead.
func (ns *NotificationService) NotifyResponders(ctx context.Context, alert *models.Alert, responders []models.Candidate) error {
	var (
		errs   []error
		tokens []string
		texted []models.Candidate
	)
	smsOnly := alert.CommunicationMode == models.CommunicationModeSMS

	for _, r := range responders {
		if r.DeviceToken != "" && ns.push != nil && !smsOnly {
			tokens = append(tokens, r.DeviceToken)
			continue
		}
		texted = append(texted, r)
	}

	if len(tokens) > 0 {
		result, err := ns.push.SendToDevices(ctx, tokens, responderPush(alert))
		if err != nil {
			errs = append(errs, err)
		}
		logrus.WithFields(logrus.Fields{
			"alertId": alert.ID.Hex(),
			"sent":    result.Sent,
			"failed":  result.Failed,
		}).Info("SOS push notifications dispatched")
	}

	for _, r := range texted {
		if ns.sms == nil || r.Phone == "" {
			logrus.WithFields(logrus.Fields{
				"alertId":     alert.ID.Hex(),
				"responderId": r.UserID,
			}).Info("No delivery channel for responder, notification logged only")
			continue
		}
		if _, err := ns.sms.Send(ctx, r.Phone, responderSMS(alert, r)); err != nil {
			errs = append(errs, fmt.Errorf("responder %s: %w", r.UserID, err))
		}
	}

	return errors.Join(errs...)
}

func (ns *NotificationService) NotifyEmergencyContact(ctx context.Context, alert *models.Alert) error {
	phone := alert.SenderEmergencyContactPhone
	if phone == "" {
		return nil
	}
	if ns.sms == nil {
		logrus.WithFields(logrus.Fields{
			"alertId": alert.ID.Hex(),
			"contact": utils.MaskPhoneNumber(phone),
		}).Info("SMS disabled, emergency contact notification logged only")
		return nil
	}

	_, err := ns.sms.Send(ctx, phone, emergencyContactSMS(alert))
	return err
}

// Notification templates

func responderPush(alert *models.Alert) PushNotification {
	return PushNotification{
		Title: fmt.Sprintf("🚨 SOS: %s emergency nearby", humanize(alert.EmergencyType)),
		Body:  fmt.Sprintf("%s needs help. Tap to respond.", alert.SenderName),
		Data: map[string]string{
			"type":          "sos_alert",
			"alertId":       alert.ID.Hex(),
			"alertCode":     alert.AlertCode,
			"emergencyType": alert.EmergencyType,
			"priority":      alert.Priority,
			"latitude":      fmt.Sprintf("%.6f", alert.Latitude),
			"longitude":     fmt.Sprintf("%.6f", alert.Longitude),
		},
		Sound: "emergency",
	}
}

func responderSMS(alert *models.Alert, r models.Candidate) string {
	return fmt.Sprintf("SOS %s: %s needs help %.1f km from you (%s). %s",
		alert.AlertCode, alert.SenderName, r.DistanceKm, humanize(alert.EmergencyType), mapsLink(alert))
}

func emergencyContactSMS(alert *models.Alert) string {
	return fmt.Sprintf("SOS ALERT: %s has raised an emergency alert (%s, code %s). Last location: %s",
		alert.SenderName, humanize(alert.EmergencyType), alert.AlertCode, mapsLink(alert))
}

func mapsLink(alert *models.Alert) string {
	return fmt.Sprintf("https://maps.google.com/?q=%.6f,%.6f", alert.Latitude, alert.Longitude)
}

func humanize(enum string) string {
	return strings.ToLower(strings.ReplaceAll(enum, "_", " "))
}
