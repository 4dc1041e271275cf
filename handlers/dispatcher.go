package handlers

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Envelope carries one command by name, as received over HTTP or the command queue.
type Envelope struct {
	CommandType string          `json:"commandType"`
	Data        json.RawMessage `json:"data"`
}

// Dispatcher routes envelopes to the gift card handler.
type Dispatcher struct {
	routes map[string]route
}

// route runs one decoded command. Only create returns a new id.
type route func(ctx context.Context, data json.RawMessage, tenantID string) (uuid.UUID, error)

func NewDispatcher(handler *GiftCardHandler) *Dispatcher {
	d := &Dispatcher{}
	d.routes = map[string]route{
		CreateGiftCard: func(ctx context.Context, data json.RawMessage, tenantID string) (uuid.UUID, error) {
			cmd, err := decodeCommand[CreateGiftCardCommand](data, tenantID)
			if err != nil {
				return uuid.Nil, err
			}
			return handler.HandleCreateGiftCard(ctx, cmd)
		},
		ActivateGiftCard:   handle(handler.HandleActivateGiftCard),
		RedeemGiftCard:     handle(handler.HandleRedeemGiftCard),
		SuspendGiftCard:    handle(handler.HandleSuspendGiftCard),
		ReactivateGiftCard: handle(handler.HandleReactivateGiftCard),
		CancelGiftCard:     handle(handler.HandleCancelGiftCard),
		ExpireGiftCard:     handle(handler.HandleExpireGiftCard),
		AdjustBalance:      handle(handler.HandleAdjustBalance),
		DecreaseBalance:    handle(handler.HandleDecreaseBalance),
	}
	return d
}

// Dispatch decodes and runs env. A non-empty tenantID replaces the tenant in the payload.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID string, env Envelope) (uuid.UUID, error) {
	r, ok := d.routes[env.CommandType]
	if !ok {
		return uuid.Nil, invalid("unknown command type %q", env.CommandType)
	}
	return r(ctx, env.Data, tenantID)
}

// NewEnvelope wraps cmd for the command queue.
func NewEnvelope(commandType string, cmd any) (Envelope, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{CommandType: commandType, Data: data}, nil
}

func handle[C any](fn func(context.Context, C) error) route {
	return func(ctx context.Context, data json.RawMessage, tenantID string) (uuid.UUID, error) {
		cmd, err := decodeCommand[C](data, tenantID)
		if err != nil {
			return uuid.Nil, err
		}
		return uuid.Nil, fn(ctx, cmd)
	}
}

func decodeCommand[C any](data json.RawMessage, tenantID string) (C, error) {
	var cmd C
	if len(data) == 0 {
		return cmd, invalid("missing command data")
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, invalid("malformed command data: %v", err)
	}
	if scoped, ok := any(&cmd).(interface{ SetTenant(string) }); ok && tenantID != "" {
		scoped.SetTenant(tenantID)
	}
	return cmd, nil
}
