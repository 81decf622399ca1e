package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campus-kart/backend/chat"
	"campus-kart/backend/clock"
	"campus-kart/backend/config"
	"campus-kart/backend/database"
	"campus-kart/backend/handlers"
	"campus-kart/backend/logging"
	"campus-kart/backend/middleware"
	"campus-kart/backend/websocket"

	"github.com/gorilla/mux"
	"github.com/rs/cors" // 引入 CORS 庫
	"go.uber.org/zap"
)

// directory 同時提供商品與使用者資料
type directory interface {
	chat.ProductDirectory
	chat.UserDirectory
}

func main() {
	cfg := config.LoadConfig()

	logger, err := logging.Init(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.JWTSecret == "" {
		zap.L().Fatal("JWT_SECRET is required")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store, dir, cleanup := openStore(ctx, cfg)
	defer cleanup()

	// 房間廣播：設定 REDIS_URL 時經由 Redis 讓多個實例共用房間
	rooms := websocket.NewRouter()
	var broadcaster chat.Broadcaster = websocket.NewLocalBroadcaster(rooms)
	if cfg.RedisURL != "" {
		rdb, err := database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			zap.L().Fatal("could not connect to redis", zap.Error(err))
		}
		defer rdb.Close()

		// 訂閱確認後才開始接受連線，避免啟動初期的廣播遺失
		backplane := websocket.NewRedisBackplane(rdb, rooms)
		if err := backplane.Start(ctx, 10*time.Second); err != nil {
			zap.L().Fatal("could not subscribe redis backplane", zap.Error(err))
		}
		broadcaster = backplane
	}

	service := chat.NewService(chat.ServiceConfig{
		Store:       store,
		Products:    dir,
		Users:       dir,
		Broadcaster: broadcaster,
		Clock:       clock.Real(),
		OTPTTL:      cfg.MeetupOTPTTL,
	})
	pipeline := chat.NewPipeline(store, broadcaster)
	auth := middleware.NewAuth(cfg.JWTSecret, dir)
	chatHandler := handlers.NewChatHandler(service)
	wsServer := websocket.NewServer(websocket.ServerConfig{
		Router:         rooms,
		Service:        service,
		Pipeline:       pipeline,
		Auth:           auth,
		AllowedOrigins: []string{cfg.FrontendURL},
	})

	router := mux.NewRouter()

	// 健康檢查路由
	router.HandleFunc("/health", handlers.Health).Methods("GET")

	// WebSocket 在升級前自行驗證 (支援 ?token=)
	router.HandleFunc("/ws", wsServer.HandleConnections)

	// 需要登入的 API 路由
	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware)
	api.HandleFunc("/chat", chatHandler.AccessChat).Methods("POST")
	api.HandleFunc("/chat", chatHandler.GetUserChats).Methods("GET")
	api.HandleFunc("/chat/{id}", chatHandler.GetChat).Methods("GET")

	// 設置 CORS 中介軟體，只允許前端網域並允許帶 cookie
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      c.Handler(router),
		IdleTimeout:  120 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		zap.L().Info("server starting", zap.String("addr", serverAddr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// 如果錯誤不是因為主動關閉伺服器，就記錄錯誤並結束程式
			zap.L().Fatal("could not listen", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	//當按下 Ctrl+C，程式會收到 SIGINT
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	zap.L().Info("shutting down server", zap.String("signal", sig.String()))
	stop()

	//最多等30秒關閉，避免資料損壞，請求中斷
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("server forced to shutdown", zap.Error(err))
	}

	zap.L().Info("server exited gracefully")
}

// openStore 依 STORE_BACKEND 建立對話儲存與商品/使用者資料來源
func openStore(ctx context.Context, cfg *config.Config) (chat.Store, directory, func()) {
	switch cfg.StoreBackend {
	case "memory":
		dir := chat.NewMemoryDirectory()
		if cfg.SeedFile != "" {
			f, err := os.Open(cfg.SeedFile)
			if err != nil {
				zap.L().Fatal("open seed file", zap.String("path", cfg.SeedFile), zap.Error(err))
			}
			err = dir.LoadSeed(f)
			f.Close()
			if err != nil {
				zap.L().Fatal("load seed file", zap.String("path", cfg.SeedFile), zap.Error(err))
			}
		}
		zap.L().Warn("using in-memory conversation store; data is lost on restart")
		return chat.NewMemoryStore(clock.Real()), dir, func() {}

	case "mongo":
		client, err := database.ConnectMongoDB(cfg.MongoDBURI)
		if err != nil {
			zap.L().Fatal("could not connect to mongodb", zap.Error(err))
		}
		db := client.Database(cfg.DBName)
		store := database.NewConversationStore(db, clock.Real())

		indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := store.EnsureIndexes(indexCtx); err != nil {
			zap.L().Fatal("could not create indexes", zap.Error(err))
		}
		return store, database.NewDirectory(db), func() { database.DisconnectMongoDB(client) }

	default:
		zap.L().Fatal("unknown STORE_BACKEND", zap.String("value", cfg.StoreBackend))
		return nil, nil, nil
	}
}
