package enums

import "fmt"

// PaymentStatus tracks the escrow lifecycle of the funds held against a booking.
type PaymentStatus string

const (
	PaymentStatusUninitiated       PaymentStatus = "uninitiated"
	PaymentStatusAuthorized        PaymentStatus = "authorized"
	PaymentStatusCaptured          PaymentStatus = "captured"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusUninitiated,
	PaymentStatusAuthorized,
	PaymentStatusCaptured,
	PaymentStatusFailed,
	PaymentStatusRefunded,
	PaymentStatusPartiallyRefunded,
}

// paymentStatusRank orders statuses along the escrow lifecycle so that a
// stale gateway notification can never move a record backwards.
var paymentStatusRank = map[PaymentStatus]int{
	PaymentStatusUninitiated:       0,
	PaymentStatusAuthorized:        1,
	PaymentStatusFailed:            1,
	PaymentStatusCaptured:          2,
	PaymentStatusPartiallyRefunded: 3,
	PaymentStatusRefunded:          4,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// Rank returns the lifecycle ordering position of the status.
func (p PaymentStatus) Rank() int {
	return paymentStatusRank[p]
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
