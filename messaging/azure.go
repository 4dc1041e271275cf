package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/giftcard/config"
	"example.com/backstage/services/giftcard/eventstore"
	"example.com/backstage/services/giftcard/handlers"
)

const (
	sessionBatchSize = 10
	sessionIdleWait  = 2 * time.Second
	sessionIdleLimit = 30 * time.Second
	contentTypeJSON  = "application/json"
)

// permanentError marks a message that must be dead-lettered instead of redelivered.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the consumer dead-letters the message.
func Permanent(err error) error {
	return &permanentError{err: err}
}

type messageHandler func(ctx context.Context, message *azservicebus.ReceivedMessage) error

type AzureClient struct {
	client *azservicebus.Client
}

func NewAzureClient(cfg config.AzureConfig) (*AzureClient, error) {
	if cfg.QueueConnStr == "" {
		return nil, errors.New("azure service bus connection string is empty")
	}
	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus client: %w", err)
	}
	return &AzureClient{client: client}, nil
}

func (a *AzureClient) Close(ctx context.Context) error {
	return a.client.Close(ctx)
}

// consumeSessions accepts sessions one after another and handles each in its own goroutine.
func (a *AzureClient) consumeSessions(ctx context.Context, queueName string, handle messageHandler) error {
	log.Info().Msgf("Starting consumers for queue %s", queueName)

	// Loop continuously to handle reconnections
	for {
		sessionReceiver, err := a.client.AcceptNextSessionForQueue(ctx, queueName, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var sbErr *azservicebus.Error
			if errors.As(err, &sbErr) && sbErr.Code == azservicebus.CodeTimeout {
				log.Debug().Msg("No session available, waiting...")
				select {
				case <-time.After(sessionIdleWait):
					continue
				case <-ctx.Done():
					return nil
				}
			}
			return err
		}

		log.Info().Msgf("Session '%s' received", sessionReceiver.SessionID())
		go a.handleSession(ctx, sessionReceiver, handle)
	}
}

func (a *AzureClient) handleSession(ctx context.Context, receiver *azservicebus.SessionReceiver, handle messageHandler) {
	defer func() {
		log.Info().Msgf("Closing session '%s'", receiver.SessionID())
		if err := receiver.Close(context.Background()); err != nil {
			log.Error().Err(err).Msgf("Error closing session '%s'", receiver.SessionID())
		}
	}()

	for {
		receiveCtx, cancel := context.WithTimeout(ctx, sessionIdleLimit)
		messages, err := receiver.ReceiveMessages(receiveCtx, sessionBatchSize, nil)
		cancel()
		if err != nil {
			// An idle session is released so another one can be accepted.
			if ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) {
				log.Error().Err(err).Msgf("Error receiving messages from session '%s'", receiver.SessionID())
			}
			return
		}
		if len(messages) == 0 {
			// No more messages in this session
			return
		}

		log.Debug().Msgf("Received %d messages from session '%s'", len(messages), receiver.SessionID())

		for _, message := range messages {
			err := handle(ctx, message)
			var permanent *permanentError
			switch {
			case err == nil:
				if err := receiver.CompleteMessage(ctx, message, nil); err != nil {
					log.Error().Err(err).Msgf("(CompleteMessage) err: %v", err)
				}
			case errors.As(err, &permanent):
				log.Warn().Err(err).Msgf("Dead-lettering message '%s'", message.MessageID)
				reason := "rejected"
				description := err.Error()
				if err := receiver.DeadLetterMessage(ctx, message, &azservicebus.DeadLetterOptions{
					Reason:           &reason,
					ErrorDescription: &description,
				}); err != nil {
					log.Error().Err(err).Msgf("(DeadLetterMessage) err: %v", err)
				}
			default:
				log.Error().Err(err).Msgf("Error processing message '%s'", message.MessageID)
				if err := receiver.AbandonMessage(ctx, message, nil); err != nil {
					log.Error().Err(err).Msgf("(AbandonMessage) err: %v", err)
				}
				// Later messages of the session must not overtake the abandoned one.
				return
			}
		}
	}
}

// ServiceBusPublisher publishes events to a session-enabled queue, one session per gift card.
type ServiceBusPublisher struct {
	sender *azservicebus.Sender
}

func (a *AzureClient) NewEventPublisher(queueName string) (*ServiceBusPublisher, error) {
	sender, err := a.client.NewSender(queueName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus sender: %w", err)
	}
	return &ServiceBusPublisher{sender: sender}, nil
}

func (p *ServiceBusPublisher) Publish(ctx context.Context, event eventstore.StoredEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	sessionID := event.StreamID.String()
	messageID := event.EventID.String()
	subject := event.EventType
	contentType := contentTypeJSON
	return p.sender.SendMessage(ctx, &azservicebus.Message{
		Body:        body,
		SessionID:   &sessionID,
		MessageID:   &messageID,
		Subject:     &subject,
		ContentType: &contentType,
	}, nil)
}

func (p *ServiceBusPublisher) Close(ctx context.Context) error {
	return p.sender.Close(ctx)
}

// ServiceBusSubscriber consumes events published by ServiceBusPublisher.
type ServiceBusSubscriber struct {
	client    *AzureClient
	queueName string
}

func (a *AzureClient) NewEventSubscriber(queueName string) *ServiceBusSubscriber {
	return &ServiceBusSubscriber{client: a, queueName: queueName}
}

func (s *ServiceBusSubscriber) Subscribe(ctx context.Context, handler EventHandler) error {
	return s.client.consumeSessions(ctx, s.queueName, func(ctx context.Context, message *azservicebus.ReceivedMessage) error {
		var event eventstore.StoredEvent
		if err := json.Unmarshal(message.Body, &event); err != nil {
			return Permanent(fmt.Errorf("error unmarshalling event: %w", err))
		}
		return handler(ctx, event)
	})
}

// ServiceBusCommandSender queues command envelopes for the worker.
type ServiceBusCommandSender struct {
	sender *azservicebus.Sender
}

func (a *AzureClient) NewCommandSender(queueName string) (*ServiceBusCommandSender, error) {
	sender, err := a.client.NewSender(queueName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus sender: %w", err)
	}
	return &ServiceBusCommandSender{sender: sender}, nil
}

func (s *ServiceBusCommandSender) SendCommand(ctx context.Context, sessionID string, env handlers.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal message body: %w", err)
	}
	subject := env.CommandType
	contentType := contentTypeJSON
	return s.sender.SendMessage(ctx, &azservicebus.Message{
		Body:        body,
		SessionID:   &sessionID,
		Subject:     &subject,
		ContentType: &contentType,
	}, nil)
}

func (s *ServiceBusCommandSender) Close(ctx context.Context) error {
	return s.sender.Close(ctx)
}

// StartCommandConsumers runs processor against the command queue until ctx is done.
func (a *AzureClient) StartCommandConsumers(ctx context.Context, queueName string, processor MessageProcessor) error {
	return a.consumeSessions(ctx, queueName, processor.ProcessMessage)
}
