package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Nguyeniris123/jobchat/internal/api"
	"github.com/Nguyeniris123/jobchat/internal/auth"
	"github.com/Nguyeniris123/jobchat/internal/backend"
	"github.com/Nguyeniris123/jobchat/internal/chat"
	"github.com/Nguyeniris123/jobchat/internal/config"
	"github.com/Nguyeniris123/jobchat/internal/db"
	"github.com/Nguyeniris123/jobchat/internal/store"
	"github.com/Nguyeniris123/jobchat/internal/user"
	"github.com/Nguyeniris123/jobchat/internal/ws"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if cfg.BackendSecret == "" {
		log.Fatal().Msg("BACKEND_JWT_SECRET is not set")
	}
	if cfg.StoreSecret == "" {
		log.Fatal().Msg("STORE_JWT_SECRET is not set")
	}

	// Document store and account storage, chosen once at startup.
	var chatStore chat.Store
	var userRepo user.Repository
	switch cfg.Store {
	case "memory":
		chatStore = store.NewMemory()
		userRepo = user.NewMemoryRepository()
		log.Info().Msg("using in-memory store")
	case "postgres":
		if cfg.DBDSN == "" {
			log.Fatal().Msg("DB_DSN is not set")
		}
		database, err := db.NewDatabase(cfg.DBDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		if err := database.AutoMigrate(); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
		log.Info().Msg("connected to postgres, schema initialized")

		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect to redis")
		}
		log.Info().Msg("connected to redis")

		pgStore, err := store.NewPostgres(ctx, database.Conn, redisClient)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize store")
		}
		chatStore = pgStore
		userRepo = user.NewSQLRepository(database.Conn)
	default:
		log.Fatal().Str("store", cfg.Store).Msg("unknown store backend")
	}

	userService := user.NewService(userRepo, cfg.BackendSecret)
	userHandler := user.NewHandler(userService)
	credService := auth.NewCredentialService(cfg.StoreSecret, cfg.CredentialTTL, userService)

	// Display names come from the job backend when one is configured;
	// dev mode answers from the local account service.
	var names chat.NameResolver = userService
	if cfg.BackendBaseURL != "" {
		names = backend.NewClient(cfg.BackendBaseURL, cfg.BackendServiceToken)
		log.Info().Str("base_url", cfg.BackendBaseURL).Msg("resolving display names via job backend")
	}

	bootstrapper := chat.NewBootstrapper(chatStore)
	channel := chat.NewChannel(chatStore)
	directory := chat.NewDirectory(chatStore, names, cfg.UnreadScanLimit)

	apiHandler := api.NewHandler(bootstrapper, channel, directory, credService)
	wsHandler := ws.NewHandler(channel, directory)
	authMiddleware := auth.NewMiddleware(credService)

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	// The backend client requests /api/users/{id}/ with a trailing
	// slash, matching the job backend's URL style.
	r.Use(chimiddleware.StripSlashes)

	// Public: dev account endpoints plus the credential exchange
	// (which authenticates with the backend token itself).
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)
	r.Post("/api/session", apiHandler.ExchangeSession)

	// Everything touching the store requires a store credential.
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/api/users/search", userHandler.Search)
		r.Get("/api/users/{userID}", userHandler.Get)

		r.Post("/api/rooms", apiHandler.CreateRoom)
		r.Get("/api/rooms", apiHandler.ListRooms)
		r.Get("/api/rooms/{roomID}/messages", apiHandler.GetHistory)
		r.Post("/api/rooms/{roomID}/messages", apiHandler.SendMessage)
		r.Post("/api/rooms/{roomID}/read", apiHandler.MarkRead)

		r.Get("/ws/rooms/{roomID}", wsHandler.ServeRoom)
		r.Get("/ws/directory", wsHandler.ServeDirectory)
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("jobchat server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
}
