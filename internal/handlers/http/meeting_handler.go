package http

import (
	"context"
	"net/http"

	"peermeet/internal/core/domain"
	"peermeet/internal/core/services"
	"peermeet/pkg/errors"
	"peermeet/pkg/validation"

	"github.com/gin-gonic/gin"
)

// MeetingHandler exposes the local control API the UI drives the meeting
// through. Mutating routes run on the session loop and block for the result.
type MeetingHandler struct {
	session *services.Session
	feed    *EventFeed
}

func NewMeetingHandler(session *services.Session, feed *EventFeed) *MeetingHandler {
	return &MeetingHandler{
		session: session,
		feed:    feed,
	}
}

func (h *MeetingHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/session", h.GetSession)
		api.GET("/participants", h.GetParticipants)
		api.GET("/waiting", h.GetWaiting)

		api.POST("/waiting/:peer/admit", h.Admit)
		api.POST("/waiting/:peer/reject", h.Reject)
		api.POST("/participants/:peer/kick", h.Kick)
		api.POST("/participants/:peer/mute", h.Mute)

		api.POST("/chat", h.SendChat)
		api.POST("/media/audio", h.SetAudio)
		api.POST("/media/video", h.SetVideo)
		api.POST("/media/screen", h.SetScreen)
		api.POST("/lock", h.SetLock)
		api.POST("/leave", h.Leave)
	}

	router.GET("/ws/events", h.feed.HandleWS)
}

func (h *MeetingHandler) GetSession(c *gin.Context) {
	ctx := c.Request.Context()

	media, err := h.session.LocalMedia(ctx)
	if err != nil {
		c.Error(err)
		return
	}
	admitted, err := h.session.IsAdmitted(ctx)
	if err != nil {
		c.Error(err)
		return
	}
	policy, err := h.session.Policy(ctx)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session":  h.session.Info(),
		"media":    media,
		"admitted": admitted,
		"policy":   policy,
	})
}

func (h *MeetingHandler) GetParticipants(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"participants": h.session.Roster(),
	})
}

func (h *MeetingHandler) GetWaiting(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"waiting": h.session.Waiting(),
	})
}

func (h *MeetingHandler) Admit(c *gin.Context) {
	peer, ok := peerParam(c)
	if !ok {
		return
	}
	if err := h.session.Admit(c.Request.Context(), peer); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "admitted", "peer_id": peer})
}

func (h *MeetingHandler) Reject(c *gin.Context) {
	peer, ok := peerParam(c)
	if !ok {
		return
	}
	if err := h.session.Reject(c.Request.Context(), peer); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rejected", "peer_id": peer})
}

func (h *MeetingHandler) Kick(c *gin.Context) {
	peer, ok := peerParam(c)
	if !ok {
		return
	}
	if err := h.session.Kick(c.Request.Context(), peer); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "kicked", "peer_id": peer})
}

// Mute imposes a media state on a participant. Without a body it is the
// classic host force-mute: audio off.
func (h *MeetingHandler) Mute(c *gin.Context) {
	peer, ok := peerParam(c)
	if !ok {
		return
	}

	req := struct {
		Kind    domain.MediaKind `json:"kind"`
		Enabled bool             `json:"enabled"`
	}{Kind: domain.MediaAudio, Enabled: false}

	if c.Request.ContentLength > 0 {
		if err := c.BindJSON(&req); err != nil {
			c.Error(errors.NewInvalidInputError("invalid request format"))
			return
		}
	}
	if !req.Kind.Valid() {
		c.Error(errors.NewInvalidInputError("kind must be audio or video"))
		return
	}

	if err := h.session.ForceState(c.Request.Context(), peer, req.Kind, req.Enabled); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "forced",
		"peer_id": peer,
		"kind":    req.Kind,
		"enabled": req.Enabled,
	})
}

func (h *MeetingHandler) SendChat(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}
	if err := validation.ValidateChatText(req.Text); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	if err := h.session.SendChat(c.Request.Context(), req.Text); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (h *MeetingHandler) SetAudio(c *gin.Context) {
	h.setMedia(c, h.session.SetAudioEnabled)
}

func (h *MeetingHandler) SetVideo(c *gin.Context) {
	h.setMedia(c, h.session.SetVideoEnabled)
}

func (h *MeetingHandler) SetScreen(c *gin.Context) {
	h.setMedia(c, h.session.SetScreenSharing)
}

func (h *MeetingHandler) SetLock(c *gin.Context) {
	var req struct {
		Locked bool `json:"locked"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}
	if err := h.session.SetLocked(c.Request.Context(), req.Locked); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "locked": req.Locked})
}

func (h *MeetingHandler) Leave(c *gin.Context) {
	if err := h.session.Leave(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

type mediaToggle func(ctx context.Context, enabled bool) error

func (h *MeetingHandler) setMedia(c *gin.Context, toggle mediaToggle) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}
	if err := toggle(c.Request.Context(), *req.Enabled); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "enabled": *req.Enabled})
}

func peerParam(c *gin.Context) (domain.PeerID, bool) {
	raw := c.Param("peer")
	if err := validation.ValidatePeerID(raw); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return "", false
	}
	return domain.PeerID(raw), true
}
