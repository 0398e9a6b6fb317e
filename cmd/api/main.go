package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"clientpin/auth"
	"clientpin/check"
	"clientpin/crm"
	"clientpin/db"
	"clientpin/directory"
	"clientpin/dispute"
	"clientpin/httpapi"
	"clientpin/logging"
	"clientpin/notify"
	"clientpin/term"
)

func main() {
	_ = godotenv.Load()

	log := logging.New(logging.FromEnv())

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}
	crmBaseURL := os.Getenv("CRM_BASE_URL")
	if crmBaseURL == "" {
		log.Fatal().Msg("CRM_BASE_URL is required")
	}
	crmToken := os.Getenv("CRM_API_TOKEN")
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to postgres")
	}
	defer pool.Close()

	authSvc := auth.NewService(auth.NewRepository(pool), jwtSecret)

	termStore := term.NewStore(term.NewRepository(pool))
	crmClient := crm.NewClient(crmBaseURL, crmToken, 10*time.Second)
	dir := directory.NewRepository(pool)

	notifier := notify.NewAsync(notify.NewLogNotifier(log), log)
	defer notifier.Wait()

	checkRepo := check.NewRepository(pool)
	resolver := check.NewResolver(dir, crmClient, log)
	recorder := check.NewRecorder(pool, checkRepo, notifier, check.DefaultNotificationRules(), log)
	checkSvc := check.NewService(resolver, termStore, recorder, log)

	disputes := dispute.NewCoordinator(pool, dispute.NewRepository(pool), checkRepo, notifier, log)

	handler := httpapi.NewHandler(authSvc, checkSvc, disputes, checkRepo, log)
	router := httpapi.NewRouter(handler, log)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown")
		}
	}()

	log.Info().Str("addr", srv.Addr).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("api stopped")
}
