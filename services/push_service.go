package services

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// FCM accepts at most 500 tokens per multicast request.
const maxMulticastTokens = 500

type PushNotification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
	Sound string            `json:"sound,omitempty"`
}

type PushResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type multicastClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type PushService struct {
	client multicastClient
}

func NewPushService(ctx context.Context, credentialsPath string) (*PushService, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize FCM client: %w", err)
	}

	return &PushService{client: client}, nil
}

// SendToDevices delivers one notification to every token, batching by the
// FCM multicast limit. Per-token failures are counted, not returned.
func (ps *PushService) SendToDevices(ctx context.Context, tokens []string, notification PushNotification) (PushResult, error) {
	var result PushResult

	for start := 0; start < len(tokens); start += maxMulticastTokens {
		end := start + maxMulticastTokens
		if end > len(tokens) {
			end = len(tokens)
		}

		response, err := ps.client.SendEachForMulticast(ctx, buildMulticast(tokens[start:end], notification))
		if err != nil {
			return result, fmt.Errorf("failed to send push batch: %w", err)
		}
		result.Sent += response.SuccessCount
		result.Failed += response.FailureCount

		for _, resp := range response.Responses {
			if !resp.Success && resp.Error != nil {
				logrus.WithError(resp.Error).Debug("Push delivery failed")
			}
		}
	}

	return result, nil
}

func buildMulticast(tokens []string, notification PushNotification) *messaging.MulticastMessage {
	sound := notification.Sound
	if sound == "" {
		sound = "default"
	}

	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Data: notification.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:     sound,
				Icon:      "ic_sos",
				Color:     "#D32F2F",
				ChannelID: "sos_alerts",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": "10"},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: notification.Title,
						Body:  notification.Body,
					},
					Sound: sound,
				},
			},
		},
	}
}
