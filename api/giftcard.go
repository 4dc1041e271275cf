package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/giftcard/handlers"
)

// CreatedResponse is returned for a newly issued gift card
type CreatedResponse struct {
	ID uuid.UUID `json:"id"`
}

// AcceptedResponse is returned when a command was queued instead of executed
type AcceptedResponse struct {
	Status     string `json:"status"`
	GiftCardID string `json:"gift_card_id"`
}

// createGiftCard issues a new gift card
func (s *Server) createGiftCard(c *gin.Context) {
	env, err := envelopeFromBody(c, handlers.CreateGiftCard, "")
	if err != nil {
		writeError(c, err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	id, err := s.dispatcher.Dispatch(ctx, tenantFrom(c), env)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreatedResponse{ID: id})
}

// command runs one intent on the card named in the path
func (s *Server) command(commandType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		env, err := envelopeFromBody(c, commandType, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}

		ctx, cancel := s.requestContext(c)
		defer cancel()

		if _, err := s.dispatcher.Dispatch(ctx, tenantFrom(c), env); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// redeemGiftCard redeems synchronously, or queues the redemption when redeem_async is set
func (s *Server) redeemGiftCard(c *gin.Context) {
	if !s.cfg.Commands.RedeemAsync || s.commands == nil {
		s.command(handlers.RedeemGiftCard)(c)
		return
	}

	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(c, &handlers.ValidationError{Problems: []string{"gift_card_id failed gift_card_id"}})
		return
	}
	env, err := envelopeFromBody(c, handlers.RedeemGiftCard, id)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	// The session id keeps redemptions of one card in order.
	if err := s.commands.SendCommand(ctx, id, env); err != nil {
		log.Error().Err(err).Str("giftCardID", id).Msg("Failed to queue redeem command")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: "failed to queue command"})
		return
	}
	c.JSON(http.StatusAccepted, AcceptedResponse{Status: "queued", GiftCardID: id})
}

// receiveCommand accepts a {commandType, data} envelope
func (s *Server) receiveCommand(c *gin.Context) {
	var env handlers.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		writeError(c, &handlers.ValidationError{Problems: []string{err.Error()}})
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	id, err := s.dispatcher.Dispatch(ctx, tenantFrom(c), env)
	if err != nil {
		writeError(c, err)
		return
	}
	if env.CommandType == handlers.CreateGiftCard {
		c.JSON(http.StatusCreated, CreatedResponse{ID: id})
		return
	}
	c.Status(http.StatusNoContent)
}

// getGiftCard returns a gift card from the read model
func (s *Server) getGiftCard(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	view, err := s.queries.GetGiftCard(ctx, tenantFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// getGiftCardByCardNumber looks a gift card up by card number
func (s *Server) getGiftCardByCardNumber(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	view, err := s.queries.GetGiftCardByCardNumber(ctx, tenantFrom(c), c.Param("number"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// getGiftCardHistory replays the card's events
func (s *Server) getGiftCardHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	entries, err := s.queries.GetGiftCardHistory(ctx, tenantFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gift_card_id": id, "events": entries})
}

// listGiftCards returns one page of the tenant's gift cards
func (s *Server) listGiftCards(c *gin.Context) {
	page, err := queryInt(c, "page")
	if err != nil {
		writeError(c, err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		writeError(c, err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	result, err := s.queries.GetGiftCards(ctx, tenantFrom(c), page, limit, c.Query("status"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// envelopeFromBody builds a command envelope from the request body. The path id
// and the tenant header always win over the same fields in the body.
func envelopeFromBody(c *gin.Context, commandType, id string) (handlers.Envelope, error) {
	fields := map[string]json.RawMessage{}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return handlers.Envelope{}, &handlers.ValidationError{Problems: []string{"unreadable body"}}
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &fields); err != nil {
			return handlers.Envelope{}, &handlers.ValidationError{Problems: []string{"malformed JSON body: " + err.Error()}}
		}
	}

	if id != "" {
		fields["gift_card_id"], _ = json.Marshal(id)
	}
	fields["tenant_id"], _ = json.Marshal(tenantFrom(c))

	data, err := json.Marshal(fields)
	if err != nil {
		return handlers.Envelope{}, err
	}
	return handlers.Envelope{CommandType: commandType, Data: data}, nil
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, &handlers.ValidationError{Problems: []string{"id must be a UUID"}})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &handlers.ValidationError{Problems: []string{name + " must be an integer"}}
	}
	return n, nil
}
