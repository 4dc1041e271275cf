package eventstore

import (
	"encoding/json"
	"fmt"

	"example.com/backstage/services/giftcard/domain"
)

type decoder func(payload []byte) (domain.Event, error)

var decoders = map[string]decoder{
	domain.GiftCardCreatedType:          decodeAs[domain.GiftCardCreated],
	domain.GiftCardActivatedType:        decodeAs[domain.GiftCardActivated],
	domain.GiftCardRedeemedType:         decodeAs[domain.GiftCardRedeemed],
	domain.GiftCardDepletedType:         decodeAs[domain.GiftCardDepleted],
	domain.GiftCardSuspendedType:        decodeAs[domain.GiftCardSuspended],
	domain.GiftCardReactivatedType:      decodeAs[domain.GiftCardReactivated],
	domain.GiftCardCancelledType:        decodeAs[domain.GiftCardCancelled],
	domain.GiftCardExpiredType:          decodeAs[domain.GiftCardExpired],
	domain.GiftCardBalanceAdjustedType:  decodeAs[domain.GiftCardBalanceAdjusted],
	domain.GiftCardBalanceDecreasedType: decodeAs[domain.GiftCardBalanceDecreased],
}

func decodeAs[T domain.Event](payload []byte) (domain.Event, error) {
	var e T
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, err
	}
	return e, nil
}

// Encode serializes an event payload.
func Encode(e domain.Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", e.EventType(), err)
	}
	return data, nil
}

// Decode rebuilds a domain event from its type name and payload.
func Decode(eventType string, payload []byte) (domain.Event, error) {
	decode, ok := decoders[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
	e, err := decode(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", eventType, err)
	}
	return e, nil
}
