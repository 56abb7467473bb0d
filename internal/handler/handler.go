// Package handler serves the chat REST API: history, presence transitions,
// read progress and room summaries.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"

	"github.com/weiawesome/wes-chat-realtime/internal/domain"
	"github.com/weiawesome/wes-chat-realtime/internal/history"
	"github.com/weiawesome/wes-chat-realtime/internal/room"
	"github.com/weiawesome/wes-chat-realtime/pkg/log"
	"github.com/weiawesome/wes-chat-realtime/pkg/response"
)

type HistoryReader interface {
	Recent(ctx context.Context, roomID string, offset, limit int) ([]domain.ChatMessage, error)
}

type PresenceService interface {
	SetStatus(ctx context.Context, roomID, userID string, status domain.Status) error
	Online(ctx context.Context, roomID string) ([]string, error)
}

type ReadService interface {
	RecordValue(ctx context.Context, roomID, userID, value string) error
	LastRead(ctx context.Context, roomID string) (map[string]string, error)
}

type RoomReader interface {
	Summary(ctx context.Context, roomID string) (*domain.ChatRoom, error)
}

// StatusRequest is the body of the online/offline endpoints.
type StatusRequest struct {
	RoomID   string `json:"roomId" form:"roomId"`
	UserID   string `json:"userId" form:"userId"`
	LastRead string `json:"lastRead" form:"lastRead"`
}

type OnlineResponse struct {
	RoomID string   `json:"roomId"`
	Users  []string `json:"users"`
}

type HTTPHandler struct {
	history  HistoryReader
	presence PresenceService
	reads    ReadService
	rooms    RoomReader
}

func NewHTTPHandler(h HistoryReader, p PresenceService, r ReadService, rooms RoomReader) *HTTPHandler {
	return &HTTPHandler{history: h, presence: p, reads: r, rooms: rooms}
}

func (h *HTTPHandler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api/chat")
	{
		api.GET("/history", h.GetHistory)
		api.POST("/online", h.MarkOnline)
		api.POST("/offline", h.MarkOffline)
		api.GET("/online", h.GetOnline)
		api.GET("/lastRead", h.GetLastRead)
		api.GET("/rooms/:roomId", h.GetRoom)
	}
}

func (h *HTTPHandler) GetHistory(c *gin.Context) {
	roomID := strings.TrimSpace(c.Query("roomId"))
	if roomID == "" {
		response.BadRequest(c, "roomId is required")
		return
	}

	offset, ok := intQuery(c, "offset", 0)
	if !ok || offset < 0 || offset > history.MaxOffset {
		response.BadRequest(c, history.ErrInvalidOffset.Error())
		return
	}
	limit, ok := intQuery(c, "limit", history.DefaultLimit)
	if !ok || limit < 1 {
		response.BadRequest(c, "limit must be a positive integer")
		return
	}
	c.Set(log.FieldRoomID, roomID)

	msgs, err := h.history.Recent(c.Request.Context(), roomID, offset, limit)
	if err != nil {
		if errors.Is(err, history.ErrInvalidRoom) || errors.Is(err, history.ErrInvalidOffset) {
			response.BadRequest(c, err.Error())
			return
		}
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to load history")
		response.InternalError(c, "failed to get chat history")
		return
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *HTTPHandler) MarkOnline(c *gin.Context) {
	h.markStatus(c, domain.StatusOnline)
}

func (h *HTTPHandler) MarkOffline(c *gin.Context) {
	h.markStatus(c, domain.StatusOffline)
}

// markStatus writes the presence transition and, when the request carries
// one, folds lastRead into read progress.
func (h *HTTPHandler) markStatus(c *gin.Context, status domain.Status) {
	req, ok := bindStatus(c)
	if !ok {
		return
	}
	c.Set(log.FieldRoomID, req.RoomID)
	c.Set(log.FieldUserID, req.UserID)

	ctx := c.Request.Context()
	err := h.presence.SetStatus(ctx, req.RoomID, req.UserID, status)
	if req.LastRead != "" {
		err = multierr.Append(err, h.reads.RecordValue(ctx, req.RoomID, req.UserID, req.LastRead))
	}
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, req.RoomID).Str(log.FieldUserID, req.UserID).
			Str("status", string(status)).Msg("failed to mark status")
		response.InternalError(c, "failed to update status")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) GetOnline(c *gin.Context) {
	roomID := strings.TrimSpace(c.Query("roomId"))
	if roomID == "" {
		response.BadRequest(c, "roomId is required")
		return
	}

	users, err := h.presence.Online(c.Request.Context(), roomID)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to list online users")
		response.InternalError(c, "failed to get online users")
		return
	}
	if users == nil {
		users = []string{}
	}
	response.Success(c, OnlineResponse{RoomID: roomID, Users: users})
}

func (h *HTTPHandler) GetLastRead(c *gin.Context) {
	roomID := strings.TrimSpace(c.Query("roomId"))
	if roomID == "" {
		response.BadRequest(c, "roomId is required")
		return
	}

	snapshot, err := h.reads.LastRead(c.Request.Context(), roomID)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to read last read")
		response.InternalError(c, "failed to get read progress")
		return
	}
	if snapshot == nil {
		snapshot = map[string]string{}
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *HTTPHandler) GetRoom(c *gin.Context) {
	roomID := strings.TrimSpace(c.Param("roomId"))

	summary, err := h.rooms.Summary(c.Request.Context(), roomID)
	if err != nil {
		if room.IsNotFound(err) {
			response.NotFound(c, "room not found")
			return
		}
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to load room")
		response.InternalError(c, "failed to get room")
		return
	}
	response.Success(c, summary)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// bindStatus reads the JSON body, falling back to query parameters for
// fields the body leaves empty.
func bindStatus(c *gin.Context) (*StatusRequest, bool) {
	var req StatusRequest
	if c.Request.ContentLength != 0 && strings.Contains(c.ContentType(), "json") {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body")
			return nil, false
		}
	}
	var q StatusRequest
	_ = c.ShouldBindQuery(&q)
	if req.RoomID == "" {
		req.RoomID = q.RoomID
	}
	if req.UserID == "" {
		req.UserID = q.UserID
	}
	if req.LastRead == "" {
		req.LastRead = q.LastRead
	}

	req.RoomID = strings.TrimSpace(req.RoomID)
	req.UserID = strings.TrimSpace(req.UserID)
	req.LastRead = strings.TrimSpace(req.LastRead)
	if req.RoomID == "" || req.UserID == "" {
		response.BadRequest(c, "roomId and userId are required")
		return nil, false
	}
	return &req, true
}

func intQuery(c *gin.Context, key string, def int) (int, bool) {
	s := c.Query(key)
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
