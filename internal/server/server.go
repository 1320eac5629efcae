// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: every concrete dependency (database, cache,
// SMS provider, mailer, blob bucket, OAuth client) is built in New and
// injected downwards:
//
//	config.Config → sqlite.DB / redis cache / sms / mailer / bucket
//	             → services → handlers → routes
//
// Nothing below this package constructs its own collaborators, so every
// layer can be tested in isolation.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tagfer/tagfer-server/internal/auth"
	"github.com/tagfer/tagfer-server/internal/config"
	"github.com/tagfer/tagfer-server/internal/handler"
	"github.com/tagfer/tagfer-server/internal/mailer"
	"github.com/tagfer/tagfer-server/internal/middleware"
	"github.com/tagfer/tagfer-server/internal/phone"
	"github.com/tagfer/tagfer-server/internal/repository"
	redisRepo "github.com/tagfer/tagfer-server/internal/repository/redis"
	sqliteRepo "github.com/tagfer/tagfer-server/internal/repository/sqlite"
	"github.com/tagfer/tagfer-server/internal/service"
	"github.com/tagfer/tagfer-server/internal/sms"
	"github.com/tagfer/tagfer-server/internal/storage"
	"github.com/tagfer/tagfer-server/internal/task"
)

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database connection, the optional Redis client and
// the background task group. Shutdown drains them in that reverse order:
// HTTP first, then detached tasks, then the stores.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger

	db     *sqliteRepo.DB
	redis  *redisRepo.VerificationCache
	tasks  *task.Group
	bucket *storage.FileBucket
}

// New builds the dependency graph for cfg and registers the routes.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		tasks:  task.NewGroup(logger),
	}

	if err := s.setupRoutes(ctx); err != nil {
		_ = s.closeStores()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes(ctx context.Context) error {
	cfg := s.config

	// === Collaborators ===
	var codes repository.VerificationCache = s.db
	if cfg.RedisURL != "" {
		cache, err := redisRepo.Open(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		s.redis = cache
		codes = cache
		s.logger.Info("verification codes stored in redis")
	}

	var sender sms.Sender = sms.NewLogSender(s.logger)
	if cfg.Twilio.AccountSID != "" {
		sender = sms.NewTwilio(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From, s.logger)
	} else {
		s.logger.Warn("twilio not configured, text messages are only logged")
	}

	var mail mailer.Mailer = mailer.NewLog(s.logger)
	if cfg.SMTP.Host != "" {
		mail = mailer.NewSMTP(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, s.logger)
	}

	bucket, err := storage.NewFileBucket(cfg.Media.Dir, cfg.Media.BaseURL)
	if err != nil {
		return fmt.Errorf("opening media bucket: %w", err)
	}
	s.bucket = bucket

	tokens, err := auth.NewTokenService(cfg.TokenSecret)
	if err != nil {
		return err
	}
	twitter := auth.NewTwitterProvider(auth.TwitterConfig{
		ClientID:     cfg.Twitter.ClientID,
		ClientSecret: cfg.Twitter.ClientSecret,
		CallbackURL:  cfg.Twitter.CallbackURL,
		AuthURL:      cfg.Twitter.AuthURL,
		TokenURL:     cfg.Twitter.TokenURL,
		APIURL:       cfg.Twitter.APIURL,
	})
	phones := phone.NewNormalizer(cfg.PhoneRegion)

	// === Services ===
	identity := service.NewIdentityService(s.db, auth.NewPasswordService(cfg.PasswordHashCost), s.logger)
	sessions := service.NewSessionService(s.db, s.tasks, cfg.SessionCacheSize, cfg.SessionCacheTTL, s.logger)
	verification := service.NewVerificationService(codes, sender, cfg.VerificationTTL, s.logger)
	profiles := service.NewProfileService(s.db, s.db, bucket, tokens, service.ProfileConfig{
		PageSize:           cfg.SuggestPageSize,
		PageTokenTTL:       cfg.PageTokenTTL,
		BaseURL:            cfg.BaseURL,
		DefaultProfileName: cfg.DefaultProfile,
	}, s.logger)
	connections := service.NewConnectionService(s.db, profiles, s.logger)
	notes := service.NewNoteService(s.db, s.logger)
	invites := service.NewInviteService(sender, phones, profiles, s.tasks, cfg.ReferralTokens, s.logger)
	authService := service.NewAuthService(service.AuthDeps{
		Identity:     identity,
		Sessions:     sessions,
		Verification: verification,
		Profiles:     profiles,
		Invites:      invites,
		Accounts:     s.db,
		Phones:       phones,
		Tokens:       tokens,
		Mailer:       mail,
	}, cfg.ResetTokenTTL, strings.TrimRight(cfg.BaseURL, "/")+"/reset-password", s.logger)

	// === Handlers ===
	authHandler := handler.NewAuthHandler(authService, twitter, s.logger)
	profileHandler := handler.NewProfileHandler(profiles, s.logger)
	connectionHandler := handler.NewConnectionHandler(connections, s.logger)
	noteHandler := handler.NewNoteHandler(notes, s.logger)

	requireSecret := auth.RequireAppSecret(cfg.AppSecret)
	requireSession := auth.RequireSession(sessions, s.logger)

	// === Global Middleware ===
	// Order matters: the request id must exist before the logger reads it.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	// === Public ===
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/auth/twitter/username", authHandler.HandleTwitterUsername)
	mediaServer := http.FileServer(http.Dir(bucket.Dir()))
	s.router.Handle("/media/*", http.StripPrefix("/media/", mediaServer))

	// Sign-out only needs the session header; an unknown session is fine.
	s.router.Post("/auth/signout", authHandler.HandleSignOut)

	// === Shared-secret routes ===
	s.router.Group(func(r chi.Router) {
		r.Use(requireSecret)

		r.Get("/auth/twitter/token", authHandler.HandleTwitterToken)
		r.Get("/auth/session/{sessionId}/exists", authHandler.HandleSessionExists)
		r.Get("/auth/email/{email}/exists", authHandler.HandleEmailExists)
		r.Get("/auth/tagferId/{tagferId}/exists", authHandler.HandleTagferIDExists)
		r.Get("/auth/phone/{phoneNumber}/exists", authHandler.HandlePhoneExists)
		r.Post("/auth/phone/code", authHandler.HandleSendPhoneCode)
		r.Post("/auth/phone/verify", authHandler.HandleVerifyPhoneCode)
		r.Post("/auth/signin", authHandler.HandleSignIn)
		r.Post("/auth/passwordReset", authHandler.HandlePasswordReset)
		r.Post("/auth/passwordReset/confirm", authHandler.HandlePasswordResetConfirm)
		r.Post("/auth/findUsers/byPhone", authHandler.HandleFindUsersByPhone)
		r.Put("/auth/signup", authHandler.HandleSignup)

		r.Get("/profiles/suggest", profileHandler.HandleSuggest)
		r.Get("/connections/{tagferId}/count", connectionHandler.HandleCount)
	})

	// === Session routes ===
	s.router.Group(func(r chi.Router) {
		r.Use(requireSession)

		r.Get("/profiles/me/{profileN}", profileHandler.HandleGetMine)
		r.Post("/profiles/me/{profileN}", profileHandler.HandleUpdateMine)
		r.Get("/profiles/me/{profileN}/qrcode", profileHandler.HandleQRCode)
		r.Get("/profiles/{tagferId}", profileHandler.HandleGetByTagferID)

		r.Route("/notes/me/{tagferId}", func(r chi.Router) {
			r.Get("/", noteHandler.HandleList)
			r.Put("/", noteHandler.HandleCreate)
			r.Post("/", noteHandler.HandleUpdate)
			r.Delete("/", noteHandler.HandleDelete)
		})

		r.Route("/connections/me", func(r chi.Router) {
			r.Get("/", connectionHandler.HandleList)
			r.Delete("/", connectionHandler.HandleCancel)
			r.Get("/count", connectionHandler.HandleMyCount)
			r.Get("/requests", connectionHandler.HandleRequests)
			r.Put("/autoAccept", connectionHandler.HandleAutoAccept)
			r.Put("/{profileN}", connectionHandler.HandleSend)
			r.Post("/{profileN}", connectionHandler.HandleAccept)
			r.Delete("/{tagferId}", connectionHandler.HandleRemove)
		})
	})

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// Start serves HTTP until SIGINT/SIGTERM, then shuts down gracefully:
//  1. stop accepting connections and wait for in-flight requests
//  2. wait for detached tasks (sign-outs, invite SMS)
//  3. close Redis and the database
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		_ = s.closeStores()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("graceful shutdown failed: %w", err))
	}
	errs = append(errs, s.Close(ctx))
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("server stopped gracefully")
	return nil
}

// Close waits for background tasks and releases the stores.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	if err := s.tasks.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for background tasks: %w", err))
	}
	errs = append(errs, s.closeStores())
	return errors.Join(errs...)
}

func (s *Server) closeStores() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}
