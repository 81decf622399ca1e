package websocket

import (
	"context"
	"net/http"

	"campus-kart/backend/chat"
	"campus-kart/backend/middleware"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ServerConfig 建立 Server 所需的依賴
type ServerConfig struct {
	Router         *Router
	Service        *chat.Service
	Pipeline       *chat.Pipeline
	Auth           *middleware.Auth
	AllowedOrigins []string // 空值表示允許所有來源
}

// Server 處理 /ws 的連線升級
type Server struct {
	router   *Router
	service  *chat.Service
	pipeline *chat.Pipeline
	auth     *middleware.Auth
	upgrader websocket.Upgrader
}

// NewServer 創建 Server
func NewServer(cfg ServerConfig) *Server {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}
	return &Server{
		router:   cfg.Router,
		service:  cfg.Service,
		pipeline: cfg.Pipeline,
		auth:     cfg.Auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// HandleConnections 驗證身分後升級為 WebSocket 連線
// 瀏覽器無法在升級請求帶 Authorization 標頭，因此也接受 ?token=
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = middleware.TokenFromRequest(r)
	}
	userID, err := s.auth.Identify(r.Context(), token)
	if err != nil {
		status := middleware.StatusFor(err)
		message := http.StatusText(status)
		if status == http.StatusInternalServerError {
			zap.L().Error("websocket auth lookup failed", zap.Error(err))
			message = "Internal server error"
		}
		middleware.WriteError(w, message, status)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("failed to upgrade to websocket", zap.Error(err))
		return
	}

	client := newClient(conn, userID)
	session := NewSession(userID, client, s.router, s.service, s.pipeline)
	zap.L().Info("client connected", zap.String("client", client.ID()), zap.String("user", userID.Hex()))

	// 升級後請求的 context 不再代表連線的生命週期
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		s.router.Detach(client)
		zap.L().Info("client disconnected", zap.String("client", client.ID()), zap.String("user", userID.Hex()))
	}()

	go client.writePump()
	client.readPump(ctx, session) // readPump 在連線關閉時返回
}
