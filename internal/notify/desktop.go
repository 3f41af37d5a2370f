package notify

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsDest   = "org.freedesktop.Notifications"
	notificationsPath   = "/org/freedesktop/Notifications"
	notificationsMethod = "org.freedesktop.Notifications.Notify"

	appName       = "tempo"
	defaultExpiry = 10000 // ms
)

// caller is the subset of dbus.BusObject the notifier uses.
type caller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// DesktopNotifier shows alerts through the freedesktop notification service.
type DesktopNotifier struct {
	conn    *dbus.Conn
	obj     caller
	icon    string
	expiry  int32
	urgency byte
}

// DesktopOption configures a DesktopNotifier.
type DesktopOption func(*DesktopNotifier)

// WithIcon sets the freedesktop icon name.
func WithIcon(icon string) DesktopOption {
	return func(n *DesktopNotifier) { n.icon = icon }
}

// WithExpiry sets how long the notification stays visible, in ms.
func WithExpiry(ms int32) DesktopOption {
	return func(n *DesktopNotifier) { n.expiry = ms }
}

// NewDesktopNotifier connects to the user's session bus.
func NewDesktopNotifier(opts ...DesktopOption) (*DesktopNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	n := newDesktopNotifier(conn.Object(notificationsDest, notificationsPath), opts...)
	n.conn = conn
	return n, nil
}

func newDesktopNotifier(obj caller, opts ...DesktopOption) *DesktopNotifier {
	n := &DesktopNotifier{
		obj:     obj,
		icon:    "alarm-symbolic",
		expiry:  defaultExpiry,
		urgency: 2, // critical
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// LimitReached sends the alert as a desktop notification.
func (n *DesktopNotifier) LimitReached(ctx context.Context, alert Alert) error {
	call := n.obj.CallWithContext(ctx, notificationsMethod, 0,
		appName,   // app_name
		uint32(0), // replaces_id
		n.icon,    // app_icon
		alert.Summary(),
		alert.Body(),
		[]string{}, // actions
		map[string]dbus.Variant{
			"urgency": dbus.MakeVariant(n.urgency),
		},
		n.expiry,
	)
	if call.Err != nil {
		return fmt.Errorf("failed to send notification: %w", call.Err)
	}
	return nil
}

// Close releases the bus connection.
func (n *DesktopNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}
