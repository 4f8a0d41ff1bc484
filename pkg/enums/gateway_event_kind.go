package enums

import "fmt"

// GatewayEventKind is the closed set of gateway notifications the reconciler
// understands. Anything else is acknowledged and dropped at the edge.
type GatewayEventKind string

const (
	GatewayEventPaymentSucceeded GatewayEventKind = "payment_succeeded"
	GatewayEventPaymentFailed    GatewayEventKind = "payment_failed"
	GatewayEventChargeRefunded   GatewayEventKind = "charge_refunded"
)

var validGatewayEventKinds = []GatewayEventKind{
	GatewayEventPaymentSucceeded,
	GatewayEventPaymentFailed,
	GatewayEventChargeRefunded,
}

// stripeEventKinds maps the raw Stripe event type strings onto the closed set.
var stripeEventKinds = map[string]GatewayEventKind{
	"payment_intent.succeeded":      GatewayEventPaymentSucceeded,
	"payment_intent.payment_failed": GatewayEventPaymentFailed,
	"charge.refunded":               GatewayEventChargeRefunded,
}

// String implements fmt.Stringer.
func (k GatewayEventKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known GatewayEventKind.
func (k GatewayEventKind) IsValid() bool {
	for _, candidate := range validGatewayEventKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseStripeEventType maps a Stripe event type string onto the closed kind
// set. The boolean is false for event types the reconciler does not handle.
func ParseStripeEventType(value string) (GatewayEventKind, bool) {
	kind, ok := stripeEventKinds[value]
	return kind, ok
}

// ParseGatewayEventKind converts raw input into a GatewayEventKind.
func ParseGatewayEventKind(value string) (GatewayEventKind, error) {
	for _, candidate := range validGatewayEventKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gateway event kind %q", value)
}
