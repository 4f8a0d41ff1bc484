package enums

import "fmt"

// CancellationReason distinguishes why a booking ended up cancelled.
// payment_failed must never be conflated with a user-initiated cancellation.
type CancellationReason string

const (
	CancellationConsumerRequested CancellationReason = "consumer_requested"
	CancellationProviderRequested CancellationReason = "provider_requested"
	CancellationEmergency         CancellationReason = "emergency"
	CancellationPaymentFailed     CancellationReason = "payment_failed"
)

var validCancellationReasons = []CancellationReason{
	CancellationConsumerRequested,
	CancellationProviderRequested,
	CancellationEmergency,
	CancellationPaymentFailed,
}

// String implements fmt.Stringer.
func (c CancellationReason) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CancellationReason.
func (c CancellationReason) IsValid() bool {
	for _, candidate := range validCancellationReasons {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCancellationReason converts raw input into a CancellationReason.
func ParseCancellationReason(value string) (CancellationReason, error) {
	for _, candidate := range validCancellationReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cancellation reason %q", value)
}
