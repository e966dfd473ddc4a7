package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateRaffle OutboxAggregateType = "raffle"
	AggregateOrder  OutboxAggregateType = "order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateRaffle,
	AggregateOrder,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names the domain event stored in outbox_events.
type OutboxEventType string

const (
	EventRaffleCreated               OutboxEventType = "raffle_created"
	EventOrderCreated                OutboxEventType = "order_created"
	EventOrderPaid                   OutboxEventType = "order_paid"
	EventOrderReconciliationRequired OutboxEventType = "order_reconciliation_required"
)

var validOutboxEventTypes = []OutboxEventType{
	EventRaffleCreated,
	EventOrderCreated,
	EventOrderPaid,
	EventOrderReconciliationRequired,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
