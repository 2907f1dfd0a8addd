package domain

import "time"

// PlatformSettings holds the admin-managed toggles the core reads.
type PlatformSettings struct {
	// AdminPaymentNotifications controls whether admins are emailed on
	// successful payments.
	AdminPaymentNotifications bool      `json:"admin_payment_notifications"`
	UpdatedAt                 time.Time `json:"updated_at"`
}
