package enums

import "fmt"

// NotificationType names the customer-facing message the notifier should send.
type NotificationType string

const (
	NotificationOrderConfirmed        NotificationType = "order_confirmed"
	NotificationRenewalOrderCreated   NotificationType = "renewal_order_created"
	NotificationPaymentFailed         NotificationType = "payment_failed"
	NotificationSubscriptionCancelled NotificationType = "subscription_cancelled"
	NotificationOrderStatusChanged    NotificationType = "order_status_changed"
)

var validNotificationTypes = []NotificationType{
	NotificationOrderConfirmed,
	NotificationRenewalOrderCreated,
	NotificationPaymentFailed,
	NotificationSubscriptionCancelled,
	NotificationOrderStatusChanged,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
