package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/giftcard/eventstore"
	"example.com/backstage/services/giftcard/handlers"
)

type MessageProcessor interface {
	ProcessMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error
}

// Processor runs queued command envelopes through the dispatcher.
type Processor struct {
	dispatcher *handlers.Dispatcher
}

func NewProcessor(dispatcher *handlers.Dispatcher) *Processor {
	return &Processor{dispatcher: dispatcher}
}

func (p *Processor) ProcessMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error {
	var env handlers.Envelope
	if err := json.Unmarshal(message.Body, &env); err != nil {
		return Permanent(fmt.Errorf("error unmarshalling message: %w", err))
	}
	return p.Process(ctx, env)
}

// Process dispatches env. Only a store outage is worth redelivering: a rejected
// command stays rejected and a conflicting one is not retried automatically.
func (p *Processor) Process(ctx context.Context, env handlers.Envelope) error {
	log.Info().Str("command", env.CommandType).Msg("Processing message")

	_, err := p.dispatcher.Dispatch(ctx, "", env)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, eventstore.ErrStoreUnavailable):
		return err
	default:
		return Permanent(err)
	}
}
