package dialog

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	log "github.com/sirupsen/logrus"
)

const (
	notificationsDest = "org.freedesktop.Notifications"
	notificationsPath = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod      = notificationsDest + ".Notify"
	notifyExpireMs    = int32(6000)
)

// Notifier shows a passive desktop notification.
type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

// DBusNotifier talks to the session notification daemon.
type DBusNotifier struct {
	AppName string
}

func (n DBusNotifier) Notify(ctx context.Context, m Message) error {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Debugf("close session bus: %v", err)
		}
	}()

	icon := "dialog-information"
	if m.Level == LevelError {
		icon = "dialog-error"
	}
	obj := conn.Object(notificationsDest, notificationsPath)
	call := obj.CallWithContext(ctx, notifyMethod, 0,
		n.AppName, uint32(0), icon, m.Title, m.Text, []string{}, map[string]dbus.Variant{}, notifyExpireMs)
	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// WithNotifications routes informational messages to n and keeps errors
// in d so they stay in front of the user. If n fails, d is used instead.
func WithNotifications(d Dialog, n Notifier) Dialog {
	if n == nil {
		return d
	}
	return &notifying{Dialog: d, notifier: n}
}

type notifying struct {
	Dialog
	notifier Notifier
}

func (d *notifying) Inform(ctx context.Context, m Message) error {
	if m.Level == LevelError {
		return d.Dialog.Inform(ctx, m)
	}
	if err := d.notifier.Notify(ctx, m); err != nil {
		log.Debugf("desktop notification failed, falling back to dialog: %v", err)
		return d.Dialog.Inform(ctx, m)
	}
	return nil
}
