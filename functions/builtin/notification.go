package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aschepis/backscratcher/converse/functions"
	"github.com/gen2brain/beeep"
)

const defaultNotificationTitle = "Converse"

// Notifier shows a desktop notification.
type Notifier func(title, message string) error

// DesktopNotifier sends notifications with beeep.
func DesktopNotifier(title, message string) error {
	return beeep.Notify(title, message, "")
}

func (s *Set) sendNotification(ctx context.Context, args functions.Arguments) (any, error) {
	var payload struct {
		Message string `json:"message"`
		Title   string `json:"title"`
	}
	if err := args.Decode(&payload); err != nil {
		return nil, err
	}
	if strings.TrimSpace(payload.Message) == "" {
		return nil, fmt.Errorf("message cannot be empty")
	}
	if payload.Title == "" {
		payload.Title = defaultNotificationTitle
	}

	if err := s.notify(payload.Title, payload.Message); err != nil {
		// Common causes: notification permissions not granted, or no notification daemon.
		s.logger.Warn().Err(err).Msg("Failed to send desktop notification")
		return nil, fmt.Errorf("failed to send desktop notification: %w", err)
	}
	s.logger.Info().Str("title", payload.Title).Msg("Desktop notification sent")

	return map[string]any{
		"title":             payload.Title,
		"message":           payload.Message,
		"notification_sent": true,
	}, nil
}

func (s *Set) currentTime(ctx context.Context, args functions.Arguments) (any, error) {
	var payload struct {
		Timezone string `json:"timezone"`
	}
	if err := args.Decode(&payload); err != nil {
		return nil, err
	}

	now := s.now()
	if payload.Timezone != "" {
		loc, err := time.LoadLocation(payload.Timezone)
		if err != nil {
			return nil, fmt.Errorf("unknown time zone %q: %w", payload.Timezone, err)
		}
		now = now.In(loc)
	}

	return map[string]any{
		"time":     now.Format(time.RFC3339),
		"weekday":  now.Weekday().String(),
		"timezone": now.Location().String(),
		"unix":     now.Unix(),
	}, nil
}
