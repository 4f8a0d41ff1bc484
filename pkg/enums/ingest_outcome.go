package enums

// IngestOutcome is the result of a webhook ingestion attempt. Only
// transient_failure should prompt gateway redelivery; every other outcome
// acknowledges receipt.
type IngestOutcome string

const (
	IngestApplied          IngestOutcome = "applied"
	IngestDuplicateIgnored IngestOutcome = "duplicate_ignored"
	IngestOrphanEvent      IngestOutcome = "orphan_event"
	IngestStaleIgnored     IngestOutcome = "stale_ignored"
	IngestTransientFailure IngestOutcome = "transient_failure"
)

// String implements fmt.Stringer.
func (o IngestOutcome) String() string {
	return string(o)
}

// Acknowledged reports whether the gateway should treat delivery as done.
func (o IngestOutcome) Acknowledged() bool {
	return o != IngestTransientFailure
}
