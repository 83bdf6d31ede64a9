package telephony

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"voicedesk/internal/auth"
	"voicedesk/internal/conversation"
	"voicedesk/internal/voice"
	"voicedesk/pkg/logger"
)

// Handlers converts HTTP traffic to internal types and delegates to the call
// engine. No business logic here.
//
// Webhook status codes are part of the delivery contract: 2xx acknowledges,
// anything else makes the provider redeliver. Events we choose to ignore are
// acknowledged; events we failed to process are not.
type Handlers struct {
	Repo       conversation.Repository
	Conference *voice.ConferenceProcessor
	Incoming   *voice.IncomingCallService
	Outgoing   *voice.OutgoingCallService

	// CallbackURL is handed to the provider on every TwiML answer so
	// conference lifecycle events come back to us.
	CallbackURL string
}

// HandleConferenceStatus ingests one conference lifecycle callback.
func (h *Handlers) HandleConferenceStatus(c *gin.Context) {
	log := logger.FromGin(c)

	payload, err := ParseConferenceStatus(c.Request)
	if err != nil {
		log.Warn("conference webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	ev := payload.ConferenceEvent()
	if !ev.Type.Valid() {
		// Unknown vocabulary is acknowledged, not retried.
		log.Debug("conference event ignored", "event", payload.Event)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	conv, err := h.Conference.ResolveConversation(c.Request.Context(), payload.FriendlyName)
	if errors.Is(err, conversation.ErrNotFound) {
		log.Warn("conference has no conversation", "conference", payload.FriendlyName)
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown conference"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	if err := h.Conference.Process(c.Request.Context(), conv.ID, ev); err != nil {
		log.Error("conference event processing failed",
			"conversation_id", conv.ID,
			"event", ev.Type,
			"err", err,
		)
		// Non-2xx so the provider redelivers; processing is idempotent.
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleInboundVoice answers a caller dialing one of the account's numbers
// with TwiML that parks them in the conversation's conference.
func (h *Handlers) HandleInboundVoice(c *gin.Context) {
	log := logger.FromGin(c)

	payload, err := ParseVoiceInbound(c.Request)
	if err != nil {
		log.Warn("inbound voice parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	conv, err := h.Incoming.Process(c.Request.Context(), voice.InboundCallRequest{
		CallSid:    payload.CallSid,
		From:       payload.From,
		To:         payload.To,
		CallerName: payload.CallerName,
	})
	if errors.Is(err, conversation.ErrNotFound) {
		log.Warn("inbound call for unknown number", "to", payload.To)
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown destination"})
		return
	}
	if errors.Is(err, conversation.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err != nil {
		log.Error("inbound call processing failed", "call_sid", payload.CallSid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	state := voice.Load(conv.Attributes)
	twiml, err := ConferenceTwiML(state.ConferenceID, "caller", h.CallbackURL)
	if err != nil {
		log.Error("twiml render failed", "conversation_id", conv.ID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}

type startCallRequest struct {
	ContactID int64 `json:"contact_id"`
}

// HandleStartOutgoingCall places an agent-originated call to a contact.
func (h *Handlers) HandleStartOutgoingCall(c *gin.Context) {
	log := logger.FromGin(c)

	accountID, err := identityID(auth.AccountID(c.Request.Context()))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
		return
	}
	agentID, err := identityID(auth.UserID(c.Request.Context()))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}

	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ContactID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "contact_id required"})
		return
	}

	conv, err := h.Outgoing.Process(c.Request.Context(), voice.OutgoingCallRequest{
		AccountID: accountID,
		ContactID: req.ContactID,
		AgentID:   agentID,
	})
	switch {
	case errors.Is(err, voice.ErrNoVoiceInbox), errors.Is(err, voice.ErrNoPhoneNumber):
		// Configuration problems surface verbatim to the operator.
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case errors.Is(err, conversation.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "contact not found"})
		return
	case err != nil:
		log.Error("outgoing call failed", "account_id", accountID, "contact_id", req.ContactID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call could not be placed"})
		return
	}

	state := voice.Load(conv.Attributes)
	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conv.DisplayID,
		"call_sid":        state.CallSid,
		"conference_id":   state.ConferenceID,
		"status":          string(state.Status),
	})
}

// HandleGetCallState returns the typed call state of a conversation.
func (h *Handlers) HandleGetCallState(c *gin.Context) {
	accountID, err := identityID(auth.AccountID(c.Request.Context()))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
		return
	}
	displayID, err := strconv.ParseInt(c.Param("display_id"), 10, 64)
	if err != nil || displayID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	conv, err := h.Repo.ConversationByDisplayID(c.Request.Context(), accountID, displayID)
	if errors.Is(err, conversation.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	state := voice.Load(conv.Attributes)
	c.JSON(http.StatusOK, gin.H{
		"conversation_id":     conv.DisplayID,
		"call_status":         string(state.Status),
		"ui_status":           state.Status.UIStatus(),
		"call_direction":      string(state.Direction),
		"call_sid":            state.CallSid,
		"conference_id":       state.ConferenceID,
		"requires_agent_join": state.RequiresAgentJoin,
		"agent_joined_at":     state.AgentJoinedAt,
		"caller_joined_at":    state.CallerJoinedAt,
	})
}

func identityID(s string, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(s, 10, 64)
}
