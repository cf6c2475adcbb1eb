// internal/adapters/notification/fcm.go
package notification

import (
	"context"
	"fmt"
	"sync/atomic"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"google.golang.org/api/option"

	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// FCMNotifier sends push notifications to the per-user topic "user_<id>".
type FCMNotifier struct {
	client *messaging.Client

	sent   atomic.Int64
	errors atomic.Int64
}

var _ Notifier = (*FCMNotifier)(nil)

func NewFCMNotifier(ctx context.Context, credentialsFile string) (*FCMNotifier, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("fcm: init app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("fcm: messaging client: %w", err)
	}
	logger.Info("✅ FCM push initialised (%s)", credentialsFile)
	return &FCMNotifier{client: client}, nil
}

func (f *FCMNotifier) Name() string { return "fcm" }

func (f *FCMNotifier) IsEnabled() bool { return f != nil && f.client != nil }

func (f *FCMNotifier) Push(ctx context.Context, msg Message) error {
	id, err := f.client.Send(ctx, buildFCMMessage(msg))
	if err != nil {
		f.errors.Add(1)
		return err
	}
	f.sent.Add(1)
	logger.Debug("📲 FCM push %s to %s (%s)", msg.Type, msg.UserID, id)
	return nil
}

func buildFCMMessage(msg Message) *messaging.Message {
	data := map[string]string{
		"id":   msg.ID,
		"type": msg.Type,
	}
	if msg.Level != "" {
		data["level"] = msg.Level
	}
	for k, v := range msg.Data {
		data[k] = fmt.Sprint(v)
	}
	return &messaging.Message{
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data:  data,
		Topic: "user_" + msg.UserID,
	}
}

func (f *FCMNotifier) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"sent":   f.sent.Load(),
		"errors": f.errors.Load(),
	}
}
