package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chathub/internal/access"
	"chathub/internal/auth"
	"chathub/internal/config"
	"chathub/internal/database"
	"chathub/internal/handlers"
	"chathub/internal/presence"
	"chathub/internal/router"
	"chathub/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresDB(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize services
	authService := auth.NewService(db, cfg)
	accessController := access.NewController(db)

	// One authoritative presence registry shared by every connection
	registry := presence.NewRegistry()
	msgRouter := router.NewRouter(db, accessController, registry)

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(authService)
	roomHandlers := handlers.NewRoomHandlers(accessController, authService, registry, db, cfg.Heartbeat.HistoryLimit)
	inviteHandlers := handlers.NewInviteHandlers(accessController, authService)
	wsHandlers := handlers.NewWebSocketHandlers(authService, accessController, registry, msgRouter, db, cfg)

	// Setup routes
	mux := http.NewServeMux()
	setupRoutes(mux, authHandlers, roomHandlers, inviteHandlers, wsHandlers)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	logger.Info("Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error: %v", err)
	}
}

func setupRoutes(mux *http.ServeMux, authHandlers *handlers.AuthHandlers, roomHandlers *handlers.RoomHandlers, inviteHandlers *handlers.InviteHandlers, wsHandlers *handlers.WebSocketHandlers) {
	// Auth routes
	mux.HandleFunc("/login", authHandlers.Login)
	mux.HandleFunc("/register", authHandlers.Register)

	// Room routes
	mux.HandleFunc("/rooms", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rooms" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		switch r.Method {
		case http.MethodGet:
			roomHandlers.ListRooms(w, r)
		case http.MethodPost:
			roomHandlers.CreateRoom(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Room sub-routes
	mux.HandleFunc("/rooms/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		if len(parts) < 3 || parts[2] == "" {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}

		// /rooms/invites and /rooms/invites/{id}/{accept|decline}
		if parts[2] == "invites" {
			switch {
			case len(parts) == 3 && r.Method == http.MethodGet:
				inviteHandlers.ListPendingInvites(w, r)
			case len(parts) == 5 && parts[4] == "accept" && r.Method == http.MethodPost:
				inviteHandlers.AcceptInvite(w, r)
			case len(parts) == 5 && parts[4] == "decline" && r.Method == http.MethodPost:
				inviteHandlers.DeclineInvite(w, r)
			default:
				http.Error(w, "endpoint not found", http.StatusNotFound)
			}
			return
		}

		// /rooms/{id}/...
		if len(parts) == 4 {
			switch {
			case parts[3] == "join" && r.Method == http.MethodPost:
				roomHandlers.JoinRoom(w, r)
				return
			case parts[3] == "leave" && r.Method == http.MethodPost:
				roomHandlers.LeaveRoom(w, r)
				return
			case parts[3] == "invite" && r.Method == http.MethodPost:
				roomHandlers.InviteUser(w, r)
				return
			case parts[3] == "members" && r.Method == http.MethodGet:
				roomHandlers.GetRoomMembers(w, r)
				return
			case parts[3] == "messages" && r.Method == http.MethodGet:
				roomHandlers.GetMessages(w, r)
				return
			case parts[3] == "online" && r.Method == http.MethodGet:
				roomHandlers.GetOnlineUsers(w, r)
				return
			}
		}

		// /rooms/{id} DELETE
		if len(parts) == 3 && r.Method == http.MethodDelete {
			roomHandlers.DeleteRoom(w, r)
			return
		}

		http.Error(w, "endpoint not found", http.StatusNotFound)
	})

	// WebSocket route
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
