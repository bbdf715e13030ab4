// Package notify adapts the desktop notification capability to the
// cross-platform beeep backend.
package notify

import (
	"context"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"

	"nextmeeting_server/core/port/out"
)

// DesktopNotifier sends notifications through the platform backend
// (D-Bus/notify-send on Linux, Notification Center on macOS, toast on
// Windows). Critical urgency goes through the backend's alert call, every
// other level through a plain notification; the title is passed unchanged.
type DesktopNotifier struct {
	appName string
	icon    string
	log     zerolog.Logger
}

// NewDesktopNotifier creates the notifier. icon may be empty.
func NewDesktopNotifier(appName, icon string, log zerolog.Logger) *DesktopNotifier {
	return &DesktopNotifier{
		appName: appName,
		icon:    icon,
		log:     log.With().Str("component", "desktop_notify").Logger(),
	}
}

// Notify implements out.Notifier.
func (n *DesktopNotifier) Notify(_ context.Context, notification out.Notification) error {
	var err error
	if notification.Urgency == out.UrgencyCritical {
		err = beeep.Alert(notification.Title, notification.Body, n.icon)
	} else {
		err = beeep.Notify(notification.Title, notification.Body, n.icon)
	}
	if err != nil {
		n.log.Error().Err(err).Str("title", notification.Title).Msg("desktop notification failed")
		return err
	}
	return nil
}

var _ out.Notifier = (*DesktopNotifier)(nil)
