package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"voicechat_server/server/chat/domain"
	"voicechat_server/server/chat/service"
	"voicechat_server/server/common/auth"
	commonlog "voicechat_server/server/common/log"
	"voicechat_server/server/common/middleware"
	"voicechat_server/server/common/transport/httpresp"
)

const maxUploadBytes = 50 << 20

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type Handler struct {
	users   *service.UserService
	rooms   *service.RoomService
	chat    *service.ChatService
	search  *service.SearchService
	hub     *service.Hub
	files   service.ObjectStore
	members service.MembershipStore
	tokens  *auth.Service
}

func NewHandler(
	users *service.UserService,
	rooms *service.RoomService,
	chat *service.ChatService,
	search *service.SearchService,
	hub *service.Hub,
	files service.ObjectStore,
	members service.MembershipStore,
	tokens *auth.Service,
) *Handler {
	return &Handler{
		users:   users,
		rooms:   rooms,
		chat:    chat,
		search:  search,
		hub:     hub,
		files:   files,
		members: members,
		tokens:  tokens,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/api/auth/register", h.register)
	r.POST("/api/auth/login", h.login)

	authed := r.Group("/api", middleware.AuthRequired(h.tokens))
	{
		authed.GET("/users", h.listUsers)
		authed.GET("/users/me", h.me)
		authed.PATCH("/users/me", h.updateProfile)

		authed.GET("/rooms", h.listRooms)
		authed.POST("/rooms", h.createRoom)
		authed.DELETE("/rooms/:room_id", h.leaveRoom)

		authed.GET("/rooms/:room_id/messages", h.listMessages)
		authed.POST("/rooms/:room_id/messages", h.sendTextMessage)
		authed.POST("/rooms/:room_id/voice", h.sendVoiceMessage)
		authed.POST("/rooms/:room_id/attachment", h.sendAttachment)
		authed.DELETE("/rooms/:room_id/messages/:message_id", h.deleteMessage)

		authed.GET("/search", h.searchMessages)
		authed.GET("/files/*key", h.downloadFile)
		authed.GET("/ws", h.handleWS)
	}
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	user, token, err := h.users.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusConflict, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, newTokenResponse(token, user))
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	user, token, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrInvalidCredentials))
		return
	}
	c.JSON(http.StatusOK, newTokenResponse(token, user))
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), middleware.AuthUserID(c))
	if err != nil {
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	user, err := h.users.UpdateProfile(c.Request.Context(), middleware.AuthUserID(c), req.Username, req.AvatarURL, req.About)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) listRooms(c *gin.Context) {
	rooms, err := h.rooms.ListMyRooms(c.Request.Context(), middleware.AuthUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *Handler) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	room, err := h.rooms.CreateRoom(c.Request.Context(), middleware.AuthUserID(c), req.Name, req.IsGroup, req.MemberIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *Handler) leaveRoom(c *gin.Context) {
	err := h.rooms.LeaveRoom(c.Request.Context(), c.Param("room_id"), middleware.AuthUserID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

func (h *Handler) listMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	msgs, err := h.chat.ListRoomMessages(c.Request.Context(), c.Param("room_id"), middleware.AuthUserID(c), limit, offset)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) sendTextMessage(c *gin.Context) {
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	msg, err := h.chat.CreateTextMessage(c.Request.Context(), c.Param("room_id"), middleware.AuthUserID(c), req.Content)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) sendVoiceMessage(c *gin.Context) {
	h.createAttachment(c, domain.MessageTypeVoice)
}

func (h *Handler) sendAttachment(c *gin.Context) {
	msgType := domain.MessageType(c.Query("message_type"))
	switch msgType {
	case domain.MessageTypeImage, domain.MessageTypeVideo, domain.MessageTypeDocument:
	default:
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("invalid attachment type"))
		return
	}
	h.createAttachment(c, msgType)
}

func (h *Handler) createAttachment(c *gin.Context, msgType domain.MessageType) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("file is required"))
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, httpresp.NewErrorResponse("file too large"))
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	msg, err := h.chat.CreateAttachment(c.Request.Context(), c.Param("room_id"), middleware.AuthUserID(c), msgType, fileHeader.Filename, contentType, data)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) deleteMessage(c *gin.Context) {
	scope := c.DefaultQuery("scope", "me")
	if scope != "me" && scope != "everyone" {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("scope must be me or everyone"))
		return
	}
	err := h.chat.DeleteMessage(c.Request.Context(), c.Param("room_id"), c.Param("message_id"), middleware.AuthUserID(c), scope)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

func (h *Handler) searchMessages(c *gin.Context) {
	q := c.Query("q")
	limits := service.SearchLimits{
		Keyword:   intQuery(c, "keyword_limit"),
		Semantic:  intQuery(c, "semantic_limit"),
		Sentences: intQuery(c, "sentence_limit"),
	}
	resp, err := h.search.Search(c.Request.Context(), middleware.AuthUserID(c), q, c.Query("room_id"), limits)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) downloadFile(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" || strings.Contains(key, "..") {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("invalid key"))
		return
	}
	data, err := h.files.Fetch(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// handleWS upgrades the connection, subscribes it to the requested room
// and pumps inbound text messages through the ingestion path. Tokens
// arrive via ?token= since browsers cannot set headers on websockets.
func (h *Handler) handleWS(c *gin.Context) {
	roomID := strings.TrimSpace(c.Query("room_id"))
	if roomID == "" {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("room_id required"))
		return
	}
	userID := middleware.AuthUserID(c)
	ok, err := h.members.IsMember(c.Request.Context(), roomID, userID)
	if err != nil || !ok {
		c.JSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrNotRoomMember))
		return
	}

	raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn := service.NewWSConn(raw)
	h.hub.Subscribe(roomID, conn, userID)
	defer h.hub.Unsubscribe(roomID, conn, userID)

	for {
		_, payload, err := raw.ReadMessage()
		if err != nil {
			return
		}
		var inbound struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(payload, &inbound); err != nil {
			continue
		}
		if inbound.Type != "message" || strings.TrimSpace(inbound.Content) == "" {
			continue
		}
		if _, err := h.chat.CreateTextMessage(c.Request.Context(), roomID, userID, inbound.Content); err != nil {
			commonlog.Errorf("event=ws action=create_message status=failed room_id=%s user_id=%s error=%v", roomID, userID, err)
			b, _ := json.Marshal(httpresp.NewErrorResponse("failed to persist message"))
			_ = conn.WriteMessage(websocket.TextMessage, b)
		}
	}
}

func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotRoomMember):
		c.JSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrNotRoomMember))
	case errors.Is(err, service.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
	case errors.Is(err, service.ErrNotSender):
		c.JSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrForbidden))
	default:
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
	}
}

func intQuery(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
