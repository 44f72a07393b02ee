// internal/models/notification.go
package models

// Notification channels. Reminders are never persisted; a channel name is
// all that travels between the sweep and the dispatcher.
const (
	ChannelEmail = "email"
	ChannelCall  = "call"
)
