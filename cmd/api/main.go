package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lumalingua/api/internal/handlers"
	"github.com/lumalingua/api/internal/newsletter"
	"github.com/lumalingua/api/internal/payments"
	"github.com/lumalingua/api/internal/platform/auth"
	"github.com/lumalingua/api/internal/platform/config"
	pfirestore "github.com/lumalingua/api/internal/platform/firestore"
	"github.com/lumalingua/api/internal/platform/jobs"
	"github.com/lumalingua/api/internal/platform/observability"
	"github.com/lumalingua/api/internal/platform/secrets"
	"github.com/lumalingua/api/internal/platform/session"
	"github.com/lumalingua/api/internal/repositories"
	firestoreRepo "github.com/lumalingua/api/internal/repositories/firestore"
	"github.com/lumalingua/api/internal/services"
)

func main() {
	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	logger := baseLogger.Named("api")

	if err := run(logger); err != nil {
		logger.Error("startup failed", zap.Error(err))
		_ = baseLogger.Sync()
		os.Exit(1)
	}
	_ = baseLogger.Sync()
}

func run(logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		return fmt.Errorf("secret fetcher: %w", err)
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := loadConfig(ctx, logger, fetcher)
	if err != nil {
		return err
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		return fmt.Errorf("firestore client: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		return fmt.Errorf("repositories: %w", err)
	}

	firebaseVerifier, err := auth.NewIDTokenVerifier(ctx, cfg.Firebase)
	if err != nil {
		return fmt.Errorf("firebase verifier: %w", err)
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	sessionCodec, err := session.NewCodec(cfg.Session.SigningSecret, session.WithTTL(cfg.Session.TTL))
	if err != nil {
		return fmt.Errorf("session codec: %w", err)
	}

	commentEvents, pubsubClient := newCommentEventPublisher(ctx, logger, cfg.Events)
	if pubsubClient != nil {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	}

	pricingService, err := services.NewPricingService(services.PricingServiceDeps{
		HighIncomeCountries: cfg.Pricing.HighIncomeCountries,
		DefaultCountry:      cfg.Pricing.DefaultCountry,
	})
	if err != nil {
		return fmt.Errorf("pricing service: %w", err)
	}

	sessionService, err := services.NewSessionService(services.SessionServiceDeps{
		Verifier: authenticator,
		Codec:    sessionCodec,
	})
	if err != nil {
		return fmt.Errorf("session service: %w", err)
	}

	commentService, err := services.NewCommentService(services.CommentServiceDeps{
		Comments: registry.Comments(),
		Clock:    time.Now,
		Events:   commentEvents,
	})
	if err != nil {
		return fmt.Errorf("comment service: %w", err)
	}

	if strings.TrimSpace(cfg.PSP.StripeAPIKey) == "" {
		return errors.New("stripe api key is required for checkout")
	}
	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.PSP.StripeAPIKey,
		Logger: stripeEventLogger(logger.Named("payments")),
		Clock:  time.Now,
	})
	if err != nil {
		return fmt.Errorf("stripe provider: %w", err)
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Pricing:  pricingService,
		Provider: stripeProvider,
	})
	if err != nil {
		return fmt.Errorf("checkout service: %w", err)
	}

	newsletterService := newNewsletterService(logger, cfg.Newsletter)

	bookingService, err := services.NewBookingService(services.BookingServiceDeps{
		Bookings: registry.Bookings(),
		Clock:    time.Now,
	})
	if err != nil {
		return fmt.Errorf("booking service: %w", err)
	}

	systemService, err := newSystemService(firestoreClient, fetcher)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	webhookMiddleware := newBookingWebhookMiddleware(logger.Named("auth"), cfg)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Firebase.ProjectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(cfg.Firebase.ProjectID),
	}

	pricingHandlers := handlers.NewPricingHandlers(pricingService)
	sessionHandlers := handlers.NewSessionHandlers(sessionService)
	themeHandlers := handlers.NewThemeHandlers()
	commentHandlers := handlers.NewCommentHandlers(authenticator, commentService)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, checkoutService)
	newsletterHandlers := handlers.NewNewsletterHandlers(newsletterService)
	var bookingHandlers *handlers.BookingHandlers
	if webhookMiddleware != nil {
		bookingHandlers = handlers.NewBookingHandlers(authenticator, bookingService, webhookMiddleware)
	} else {
		bookingHandlers = handlers.NewBookingHandlers(authenticator, bookingService)
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(systemService)),
		handlers.WithPricingRoutes(pricingHandlers.Routes),
		handlers.WithSessionRoutes(sessionHandlers.Routes),
		handlers.WithThemeRoutes(themeHandlers.Routes),
		handlers.WithCommentRoutes(commentHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithNewsletterRoutes(newsletterHandlers.Routes),
		handlers.WithBookingRoutes(bookingHandlers.Routes),
	)

	return serve(ctx, logger, cfg.Server, router)
}

// serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests before returning.
func serve(ctx context.Context, logger *zap.Logger, cfg config.ServerConfig, handler http.Handler) error {
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("lumalingua api listening", zap.String("addr", server.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutdown signal received; draining requests")

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	return nil
}

func loadConfig(ctx context.Context, logger *zap.Logger, fetcher *secrets.Fetcher) (config.Config, error) {
	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(
			"Session.SigningSecret",
			"PSP.StripeAPIKey",
			"Booking.SigningSecret",
		),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Error("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		return config.Config{}, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func stripeEventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := []zap.Field{zap.String("event", event)}
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("stripe log", zFields...)
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// newCommentEventPublisher builds the Pub/Sub publisher for comment lifecycle
// events. Events degrade to a no-op when the topic is not configured.
func newCommentEventPublisher(ctx context.Context, logger *zap.Logger, cfg config.EventsConfig) (services.CommentEventPublisher, *pubsub.Client) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	topicID := strings.TrimSpace(cfg.Topic)
	if projectID == "" || topicID == "" {
		logger.Info("comment events disabled; pubsub topic not configured")
		return nil, nil
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		logger.Warn("comment events disabled; pubsub client init failed", zap.Error(err))
		return nil, nil
	}

	publisher, err := jobs.NewPubSubCommentPublisher(client.Topic(topicID))
	if err != nil {
		logger.Warn("comment events disabled", zap.Error(err))
		_ = client.Close()
		return nil, nil
	}
	return publisher, client
}

func newNewsletterService(logger *zap.Logger, cfg config.NewsletterConfig) services.NewsletterService {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		logger.Warn("newsletter signup disabled; provider endpoint not configured")
		return nil
	}

	client, err := newsletter.NewClient(endpoint, cfg.AuthToken, newsletter.WithListID(cfg.ListID))
	if err != nil {
		logger.Warn("newsletter signup disabled", zap.Error(err))
		return nil
	}

	svc, err := services.NewNewsletterService(services.NewsletterServiceDeps{Client: client})
	if err != nil {
		logger.Warn("newsletter signup disabled", zap.Error(err))
		return nil
	}
	return svc
}

func newBookingWebhookMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	secret := strings.TrimSpace(cfg.Booking.SigningSecret)
	if secret == "" {
		logger.Warn("booking webhook signature validation disabled; signing secret not configured")
		return nil
	}

	provider := auth.SecretProviderFunc(func(context.Context, string) (string, error) {
		return secret, nil
	})
	nonces := auth.NewInMemoryNonceStore()
	validator := auth.NewHMACValidator(provider, nonces,
		auth.WithHMACLogger(observability.NewPrintfAdapter(logger)),
		auth.WithHMACHeaders(cfg.Security.HMAC.SignatureHeader, cfg.Security.HMAC.TimestampHeader, cfg.Security.HMAC.NonceHeader),
		auth.WithHMACClockSkew(cfg.Security.HMAC.ClockSkew),
		auth.WithHMACNonceTTL(cfg.Security.HMAC.NonceTTL),
	)
	return validator.RequireHMAC("booking")
}

func newSystemService(client *firestore.Client, fetcher *secrets.Fetcher) (services.SystemService, error) {
	var checks []repositories.DependencyCheck
	if client != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check:   firestoreCheck(client),
		})
	}
	if fetcher != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check:   secretManagerCheck(fetcher),
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Clock:            time.Now,
	})
}

// firestoreCheck lists a single collection; an empty database is healthy.
func firestoreCheck(client *firestore.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := client.Collections(ctx).Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		return err
	}
}

// secretManagerCheck probes a well-known secret name; NotFound still proves
// the Secret Manager API is reachable.
func secretManagerCheck(fetcher *secrets.Fetcher) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := fetcher.Resolve(ctx, "secret://system/healthz?version=latest")
		if err == nil {
			return nil
		}
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return nil
		}
		return err
	}
}
