package devserver

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"bazaarchat/internal/catalog"
	"bazaarchat/internal/domain/chat"
	"bazaarchat/internal/identity"
	"bazaarchat/internal/services"
	bazaar_errors "bazaarchat/pkg/errors"
	"bazaarchat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxAttachmentSize = 10 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Local development server, origin checks would only get in the way.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server exposes the platform surface the mobile client consumes: the
// conversation and message REST routes plus the websocket realtime feed.
type Server struct {
	directory *services.DirectoryService
	store     *services.StoreService
	hub       *Hub
	jwtSecret []byte
	log       *logger.Logger
}

func NewServer(
	directory *services.DirectoryService,
	store *services.StoreService,
	hub *Hub,
	jwtSecret string,
	log *logger.Logger,
) *Server {
	return &Server{
		directory: directory,
		store:     store,
		hub:       hub,
		jwtSecret: []byte(jwtSecret),
		log:       log,
	}
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router(mode string) *gin.Engine {
	if mode != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/v1/catalog/categories", s.listCategories)

	auth := r.Group("/", s.authMiddleware())
	auth.POST("/v1/conversations/direct", s.openDirect)
	auth.POST("/v1/conversations/group", s.openGroup)
	auth.POST("/v1/conversations/:id/join", s.joinGroup)
	auth.GET("/v1/conversations/:id/messages", s.listMessages)
	auth.POST("/v1/conversations/:id/messages", s.sendMessage)
	auth.POST("/v1/conversations/:id/attachments", s.sendAttachment)
	auth.POST("/v1/conversations/:id/read", s.markRead)
	auth.GET("/v1/conversations/:id/unread", s.countUnread)
	auth.GET("/ws", s.serveWS)

	return r
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		if token == "" {
			token = c.Query("token")
		}
		userID, err := identity.ParseSessionToken(token, s.jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
			c.Abort()
			return
		}
		c.Set("user_id", userID)
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(value) > len(prefix) && value[:len(prefix)] == prefix {
		return value[len(prefix):]
	}
	return ""
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64("user_id")
}

type conversationResponse struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	CommunityID int64   `json:"community_id,omitempty"`
	MemberIDs   []int64 `json:"member_ids,omitempty"`
}

func toConversationResponse(conv chat.Conversation) conversationResponse {
	resp := conversationResponse{ID: conv.ID, Type: conv.Type}
	if conv.CommunityID.Valid {
		resp.CommunityID = conv.CommunityID.Int64
	}
	for _, m := range conv.Members {
		resp.MemberIDs = append(resp.MemberIDs, m.UserID)
	}
	return resp
}

type messageResponse struct {
	ID              int64     `json:"id"`
	ConversationID  int64     `json:"conversation_id"`
	SenderID        int64     `json:"sender_id"`
	ClientMessageID string    `json:"client_message_id,omitempty"`
	Body            string    `json:"body"`
	AttachmentURL   string    `json:"attachment_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func toMessageResponse(m chat.Message) messageResponse {
	resp := messageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
	}
	if m.ClientMessageID.Valid {
		resp.ClientMessageID = m.ClientMessageID.String
	}
	if m.AttachmentURL.Valid {
		resp.AttachmentURL = m.AttachmentURL.String
	}
	return resp
}

func (s *Server) openDirect(c *gin.Context) {
	var req struct {
		PeerID int64 `json:"peer_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	conv, err := s.directory.GetOrCreateDirect(c.Request.Context(), currentUser(c), req.PeerID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toConversationResponse(conv))
}

func (s *Server) openGroup(c *gin.Context) {
	var req struct {
		CommunityID int64   `json:"community_id"`
		MemberIDs   []int64 `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	members := req.MemberIDs
	if !contains(members, currentUser(c)) {
		members = append(members, currentUser(c))
	}
	conv, err := s.directory.GetOrCreateGroup(c.Request.Context(), req.CommunityID, members)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toConversationResponse(conv))
}

func (s *Server) joinGroup(c *gin.Context) {
	convID, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.directory.JoinGroup(c.Request.Context(), convID, currentUser(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listMessages(c *gin.Context) {
	convID, ok := pathID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	var before time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("before must be RFC3339"))
			return
		}
		before = parsed
	}

	msgs, err := s.store.ListMessages(c.Request.Context(), convID, limit, before)
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

func (s *Server) sendMessage(c *gin.Context) {
	convID, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		Body            string `json:"body"`
		ClientMessageID string `json:"client_message_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	msg, err := s.store.SendMessage(c.Request.Context(), convID, currentUser(c), req.Body, req.ClientMessageID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMessageResponse(msg))
}

func (s *Server) sendAttachment(c *gin.Context) {
	convID, ok := pathID(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("file field is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAttachmentSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("could not read file"))
		return
	}
	if len(data) > maxAttachmentSize {
		c.JSON(http.StatusRequestEntityTooLarge, errorBody("attachment too large"))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	msg, err := s.store.SendAttachment(c.Request.Context(), convID, currentUser(c),
		c.PostForm("caption"), c.PostForm("client_message_id"), contentType, data)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMessageResponse(msg))
}

func (s *Server) markRead(c *gin.Context) {
	convID, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.store.MarkRead(c.Request.Context(), convID, currentUser(c), time.Now()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) countUnread(c *gin.Context) {
	convID, ok := pathID(c)
	if !ok {
		return
	}

	userID := currentUser(c)
	members, err := s.directory.ListMembers(c.Request.Context(), convID)
	if err != nil {
		s.fail(c, err)
		return
	}
	var since time.Time
	for _, m := range members {
		if m.UserID == userID && m.LastReadAt.Valid {
			since = m.LastReadAt.Time
		}
	}

	count, err := s.store.CountUnread(c.Request.Context(), convID, userID, since)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

func (s *Server) listCategories(c *gin.Context) {
	type fieldResponse struct {
		Name     string   `json:"name"`
		Label    string   `json:"label"`
		Type     string   `json:"type"`
		Unit     string   `json:"unit,omitempty"`
		Options  []string `json:"options,omitempty"`
		Required bool     `json:"required"`
	}
	type categoryResponse struct {
		Slug   string          `json:"slug"`
		Fields []fieldResponse `json:"fields"`
	}

	out := make([]categoryResponse, 0, len(catalog.Kinds()))
	for _, k := range catalog.Kinds() {
		form := catalog.FormFor(k)
		cat := categoryResponse{Slug: k.String()}
		for _, f := range form.Fields {
			cat.Fields = append(cat.Fields, fieldResponse{
				Name:     f.Name,
				Label:    f.Label,
				Type:     fieldTypeName(f.Type),
				Unit:     f.Unit,
				Options:  f.Options,
				Required: f.Required,
			})
		}
		out = append(out, cat)
	}
	c.JSON(http.StatusOK, gin.H{"categories": out})
}

func fieldTypeName(t catalog.FieldType) string {
	switch t {
	case catalog.FieldNumber:
		return "number"
	case catalog.FieldSelect:
		return "select"
	default:
		return "text"
	}
}

func (s *Server) serveWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.hub.register <- newClient(s.hub, conn, currentUser(c))
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, bazaar_errors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorBody("invalid input"))
	case errors.Is(err, bazaar_errors.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, bazaar_errors.ErrAlreadyExists), errors.Is(err, bazaar_errors.ErrConflict):
		c.JSON(http.StatusConflict, errorBody("conflict"))
	case errors.Is(err, bazaar_errors.ErrUnauthorized), errors.Is(err, bazaar_errors.ErrNoIdentity):
		c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
	default:
		s.log.Logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("internal error"))
	}
}

func errorBody(msg string) gin.H {
	return gin.H{"error": msg}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorBody("invalid conversation id"))
		return 0, false
	}
	return id, true
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
