package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/formsmith/formsmith/internal/backup"
	"github.com/formsmith/formsmith/internal/billing"
	"github.com/formsmith/formsmith/internal/database"
	"github.com/formsmith/formsmith/internal/email"
	"github.com/formsmith/formsmith/internal/logging"
	"github.com/formsmith/formsmith/internal/plan"
	"github.com/formsmith/formsmith/internal/push"
	"github.com/formsmith/formsmith/internal/server"
	"github.com/formsmith/formsmith/internal/suggest"
)

func main() {
	generateVAPID := flag.Bool("generate-vapid-keys", false, "print a fresh VAPID key pair and exit")
	restoreKey := flag.String("restore-backup", "", "restore the database from the given backup object key and exit")
	flag.Parse()

	logger := logging.Setup(os.Getenv("FORMSMITH_LOG_LEVEL"))

	if *generateVAPID {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			slog.Error("generate VAPID keys", "error", err)
			os.Exit(1)
		}
		fmt.Printf("FORMSMITH_VAPID_PUBLIC_KEY=%s\nFORMSMITH_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	port := os.Getenv("FORMSMITH_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("FORMSMITH_DB_PATH")
	if dbPath == "" {
		dbPath = "formsmith.db"
	}

	baseURL := os.Getenv("FORMSMITH_BASE_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%s", port)
	}

	tokenSecret := os.Getenv("FORMSMITH_TOKEN_SECRET")
	if tokenSecret == "" {
		slog.Error("FORMSMITH_TOKEN_SECRET is required")
		os.Exit(1)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	backups := backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("FORMSMITH_BACKUP_S3_ENDPOINT"),
			Bucket:    os.Getenv("FORMSMITH_BACKUP_S3_BUCKET"),
			Region:    os.Getenv("FORMSMITH_BACKUP_S3_REGION"),
			AccessKey: os.Getenv("FORMSMITH_BACKUP_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("FORMSMITH_BACKUP_S3_SECRET_KEY"),
		},
		DBPath:        dbPath,
		Passphrase:    os.Getenv("FORMSMITH_BACKUP_PASSPHRASE"),
		Hour:          envInt("FORMSMITH_BACKUP_HOUR", 3),
		RetentionDays: envInt("FORMSMITH_BACKUP_RETENTION_DAYS", 30),
	}, db, logger)

	if *restoreKey != "" {
		db.Close()
		if err := backups.Restore(context.Background(), *restoreKey); err != nil {
			slog.Error("restore backup", "key", *restoreKey, "error", err)
			os.Exit(1)
		}
		slog.Info("restore complete, start the server again", "key", *restoreKey)
		return
	}

	limits := plan.DefaultLimits()
	limits.Free = envInt("FORMSMITH_FREE_LIMIT", limits.Free)
	limits.Pro = envInt("FORMSMITH_PRO_LIMIT", limits.Pro)
	limits.Team = envInt("FORMSMITH_TEAM_LIMIT", limits.Team)

	fromEmail := os.Getenv("FORMSMITH_FROM_EMAIL")
	emailClient := email.NewClient(os.Getenv("FORMSMITH_POSTMARK_TOKEN"), fromEmail, baseURL)
	suggestClient := suggest.NewClient(os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_MODEL"))
	pushService := push.NewService(
		os.Getenv("FORMSMITH_VAPID_PUBLIC_KEY"),
		os.Getenv("FORMSMITH_VAPID_PRIVATE_KEY"),
		fromEmail,
	)

	cfg := server.Config{
		BaseURL:       baseURL,
		TokenSecret:   tokenSecret,
		SecureCookies: os.Getenv("FORMSMITH_SECURE_COOKIES") == "true",
		Limits:        limits,
		Stripe: billing.Config{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			ProPriceID:    os.Getenv("STRIPE_PRO_PRICE_ID"),
			TeamPriceID:   os.Getenv("STRIPE_TEAM_PRICE_ID"),
			SuccessURL:    baseURL + "/settings/billing?session_id={CHECKOUT_SESSION_ID}",
			CancelURL:     baseURL + "/pricing",
		},
		EmailClient:   emailClient,
		SuggestClient: suggestClient,
		PushService:   pushService,
	}

	srv, err := server.New(db, cfg, logger)
	if err != nil {
		slog.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	backups.Start(cleanupCtx)
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("formsmith starting", "addr", ":"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	backups.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
		slog.Warn("ignoring invalid integer env var", "key", key, "value", v)
	}
	return fallback
}
