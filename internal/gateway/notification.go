package gateway

import "context"

// Notification is an outbound message about a booking lifecycle event,
// per spec §4.K.
type Notification struct {
	Recipient string
	Template  string
	Data      map[string]string
}

// NotificationGateway is the shape of the external notification
// provider (email/SMS) this system talks to. Interface only: no
// concrete implementation belongs in this bounded context.
type NotificationGateway interface {
	// Send dispatches a notification.
	// Errors: NotificationApiUnavailable, NotificationAuthentication,
	// InvalidRecipient, NotificationRateLimit.
	Send(ctx context.Context, n Notification) error
}
