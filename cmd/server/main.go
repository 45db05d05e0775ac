package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"watrack/backend/internal/config"
	"watrack/backend/internal/db"
	"watrack/backend/internal/notification"
	notificationhandler "watrack/backend/internal/notification/handler"
	notificationproducer "watrack/backend/internal/notification/producer"
	notificationrepo "watrack/backend/internal/notification/repository"
	"watrack/backend/internal/security"
	"watrack/backend/internal/server"
	sessionrepo "watrack/backend/internal/session/repository"
	statsrepo "watrack/backend/internal/stats/repository"
	"watrack/backend/internal/telemetry"
	"watrack/backend/internal/telemetry/otel"
	trackinghandler "watrack/backend/internal/tracking/handler"
	trackingrepo "watrack/backend/internal/tracking/repository"
	trackingservice "watrack/backend/internal/tracking/service"
	userhandler "watrack/backend/internal/user/handler"
	userrepo "watrack/backend/internal/user/repository"
	userservice "watrack/backend/internal/user/service"
	"watrack/backend/internal/wa/authstate"
	"watrack/backend/internal/wa/controller"
	wahandler "watrack/backend/internal/wa/handler"
	"watrack/backend/internal/wa/qrcache"
	"watrack/backend/internal/wa/registry"
	"watrack/backend/internal/wa/subscription"
	"watrack/backend/internal/wa/transport/meow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "watrack-backend", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	metrics := telemetry.NewMetrics(providers.MeterProvider)

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	tokens, err := buildTokens(cfg)
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hasher := security.NewHasher(cost)

	crypter, err := security.NewBlobCrypter(cfg.AuthEncryptionKey())
	if err != nil {
		log.Fatalf("auth encryption: %v", err)
	}
	if !crypter.Encrypted() {
		log.Println("WARNING: WhatsApp credentials will be stored unencrypted (WA_ALLOW_PLAINTEXT_AUTH)")
	}

	users := userrepo.NewPostgresRepository(database)
	sessions := sessionrepo.NewPostgresRepository(database)
	tracking := trackingrepo.NewPostgresRepository(database)
	stats := statsrepo.NewPostgresRepository(database)
	notes := notificationrepo.NewPostgresRepository(database)

	producer, err := notificationproducer.NewKafkaProducer(cfg.NotifyKafkaBrokersList(), cfg.NotifyKafkaTopic)
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}
	notifier := notification.NewNotifier(notes, producer)

	dialer, err := meow.NewDialer(cfg.StoreDSN())
	if err != nil {
		log.Fatalf("wa store: %v", err)
	}

	qr := qrcache.NewMemoryCache()
	qr.StartSweeper(ctx, time.Minute)

	ctrl := controller.New(
		sessions,
		users,
		authstate.NewCodec(crypter),
		dialer,
		registry.New(),
		qr,
		cfg.QRChallengeTTL(),
		subscription.NewManager(tracking, cfg.WACountryPrefix),
		trackingservice.NewRecorder(tracking, stats),
		notifier,
	)
	ctrl.SetMetrics(metrics)

	auth := userservice.NewAuthService(users, hasher, tokens)

	router := server.New(server.Deps{
		Tokens:        tokens,
		Users:         userhandler.NewHandler(auth),
		WA:            wahandler.NewHandler(ctrl, sessions, cfg.QRURLBase),
		Tracking:      trackinghandler.NewHandler(tracking, stats),
		Notifications: notificationhandler.NewHandler(notes),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	// Disconnect without logging out so sessions resume after restart.
	ctrl.Shutdown()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Printf("kafka close: %v", err)
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("server stopped")
}

// buildTokens picks HMAC or asymmetric signing depending on configuration.
func buildTokens(cfg *config.Config) (*security.TokenProvider, error) {
	if cfg.JWTSecret != "" {
		return security.NewHMACTokenProvider([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
	}
	priv, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		return nil, err
	}
	pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
}
