package enums

import "fmt"

// OutboxDLQErrorReason records why an outbox row stopped being retried.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts: the broker kept failing until the attempt budget ran out.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable: the row itself is unpublishable.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	_, err := ParseOutboxDLQErrorReason(string(r))
	return err == nil
}

// ParseOutboxDLQErrorReason converts a query or column value into a reason.
func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	switch reason := OutboxDLQErrorReason(value); reason {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable:
		return reason, nil
	}
	return "", fmt.Errorf("invalid dead-letter reason %q", value)
}
