// Package config assembles runtime configuration from environment variables,
// an optional .env file, and secret:// references resolved through an
// injected secret resolver.
package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultSecurityEnvironment = "local"
	defaultSessionTTL          = 7 * 24 * time.Hour
	defaultDefaultCountry      = "ES"
	defaultHMACSignatureHeader = "X-Signature"
	defaultHMACTimestampHeader = "X-Signature-Timestamp"
	defaultHMACNonceHeader     = "X-Signature-Nonce"
	defaultHMACClockSkew       = 5 * time.Minute
	defaultHMACNonceTTL        = 5 * time.Minute
	defaultEventsTopic         = "comment-events"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Firebase   FirebaseConfig
	Firestore  FirestoreConfig
	Session    SessionConfig
	Pricing    PricingConfig
	PSP        PSPConfig
	Newsletter NewsletterConfig
	Booking    BookingConfig
	Events     EventsConfig
	Security   SecurityConfig
}

// ServerConfig holds the listener address and HTTP timeouts.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig identifies the Firebase project backing auth.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig selects the Firestore database and emulator.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// SessionConfig controls the signed session envelope.
type SessionConfig struct {
	SigningSecret string
	TTL           time.Duration
}

// PricingConfig drives the pricing resolver tier decision.
type PricingConfig struct {
	DefaultCountry      string
	HighIncomeCountries []string
}

// PSPConfig collects secrets for the payment provider.
type PSPConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
}

// NewsletterConfig points at the hosted email marketing API.
type NewsletterConfig struct {
	Endpoint  string
	AuthToken string
	ListID    string
}

// BookingConfig captures the scheduling-widget webhook expectations.
type BookingConfig struct {
	SigningSecret string
}

// EventsConfig names the Pub/Sub resources used for lifecycle events.
type EventsConfig struct {
	ProjectID string
	Topic     string
}

// SecurityConfig groups request verification settings.
type SecurityConfig struct {
	Environment string
	HMAC        HMACConfig
}

// HMACConfig names the signature headers and replay windows for webhooks.
type HMACConfig struct {
	SignatureHeader string
	TimestampHeader string
	NonceHeader     string
	ClockSkew       time.Duration
	NonceTTL        time.Duration
}

// SecretResolver turns a secret:// reference into its current value.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc lets a bare function act as a SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret calls the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// ValidationError reports required configuration fields that are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError describes a failure while resolving a single secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates required secrets that resolved to nothing.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// Names returns the configuration field names of the missing secrets.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

// RedactedNames returns stable opaque identifiers for the missing secrets,
// safe to write to logs.
func (e *MissingSecretsError) RedactedNames() []string {
	names := e.Names()
	out := make([]string, len(names))
	for i, name := range names {
		sum := sha256.Sum256([]byte(name))
		out[i] = hex.EncodeToString(sum[:8])
	}
	return out
}

// Option customises Load behaviour.
type Option func(*loader)

type loader struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	resolver        SecretResolver
	requiredSecrets []string
	defaultTiers    []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(l *loader) { l.envFile = path }
}

// WithEnvMap injects explicit key/value pairs, taking precedence over the
// system environment and the .env file.
func WithEnvMap(values map[string]string) Option {
	return func(l *loader) { l.envMap = values }
}

// WithoutSystemEnv disables os.Environ lookups, leaving only the .env file
// and any injected map.
func WithoutSystemEnv() Option {
	return func(l *loader) { l.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(l *loader) { l.resolver = resolver }
}

// WithRequiredSecrets marks config fields whose resolved value must be
// non-empty, named by their path (e.g. "Session.SigningSecret").
func WithRequiredSecrets(names ...string) Option {
	return func(l *loader) { l.requiredSecrets = append(l.requiredSecrets, names...) }
}

// WithDefaultHighIncomeCountries supplies the built-in tier table used when
// the environment does not provide one.
func WithDefaultHighIncomeCountries(codes []string) Option {
	return func(l *loader) { l.defaultTiers = codes }
}

func newLoader(opts []Option) *loader {
	l := &loader{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// envSource answers key lookups with envMap > system env > .env precedence.
type envSource struct {
	explicit map[string]string
	system   bool
	dotenv   map[string]string
}

func (l *loader) buildSource() (envSource, error) {
	dotenv, err := parseEnvFile(l.envFile)
	if err != nil {
		return envSource{}, err
	}
	return envSource{explicit: l.envMap, system: l.useSystemEnv, dotenv: dotenv}, nil
}

func (s envSource) lookup(key string) (string, bool) {
	if value, ok := s.explicit[key]; ok {
		return value, true
	}
	if s.system {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
	}
	value, ok := s.dotenv[key]
	return value, ok
}

func (s envSource) str(key, fallback string) string {
	if value, ok := s.lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func (s envSource) duration(key string, fallback time.Duration) time.Duration {
	if value, ok := s.lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (s envSource) csv(key string) []string {
	raw, _ := s.lookup(key)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// EnvironmentValues returns the effective environment map after applying the
// same precedence rules as Load. Callers use it to bootstrap dependencies
// (such as the secret fetcher) before Load runs.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	source, err := newLoader(opts).buildSource()
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	for key, value := range source.dotenv {
		values[key] = value
	}
	if source.system {
		for _, entry := range os.Environ() {
			if key, value, ok := strings.Cut(entry, "="); ok && key != "" {
				values[key] = value
			}
		}
	}
	for key, value := range source.explicit {
		values[key] = value
	}
	return values, nil
}

// Load assembles the application configuration from defaults, the .env file,
// environment variables, and secret resolution.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	l := newLoader(opts)
	source, err := l.buildSource()
	if err != nil {
		return Config{}, err
	}

	cfg := l.assemble(source)
	if err := l.resolveSecrets(ctx, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (l *loader) assemble(env envSource) Config {
	cfg := Config{
		Server: ServerConfig{
			Port:         env.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  env.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: env.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  env.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.str("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Session: SessionConfig{
			SigningSecret: env.str("API_SESSION_SIGNING_SECRET", ""),
			TTL:           env.duration("API_SESSION_TTL", defaultSessionTTL),
		},
		Pricing: PricingConfig{
			DefaultCountry:      strings.ToUpper(env.str("API_PRICING_DEFAULT_COUNTRY", defaultDefaultCountry)),
			HighIncomeCountries: env.csv("API_PRICING_HIGH_INCOME_COUNTRIES"),
		},
		PSP: PSPConfig{
			StripeAPIKey:        env.str("API_PSP_STRIPE_API_KEY", ""),
			StripeWebhookSecret: env.str("API_PSP_STRIPE_WEBHOOK_SECRET", ""),
		},
		Newsletter: NewsletterConfig{
			Endpoint:  env.str("API_NEWSLETTER_ENDPOINT", ""),
			AuthToken: env.str("API_NEWSLETTER_AUTH_TOKEN", ""),
			ListID:    env.str("API_NEWSLETTER_LIST_ID", ""),
		},
		Booking: BookingConfig{
			SigningSecret: env.str("API_BOOKING_SIGNING_SECRET", ""),
		},
		Events: EventsConfig{
			ProjectID: env.str("API_EVENTS_PROJECT_ID", ""),
			Topic:     env.str("API_EVENTS_TOPIC", defaultEventsTopic),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(env.str("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			HMAC: HMACConfig{
				SignatureHeader: env.str("API_SECURITY_HMAC_HEADER_SIGNATURE", defaultHMACSignatureHeader),
				TimestampHeader: env.str("API_SECURITY_HMAC_HEADER_TIMESTAMP", defaultHMACTimestampHeader),
				NonceHeader:     env.str("API_SECURITY_HMAC_HEADER_NONCE", defaultHMACNonceHeader),
				ClockSkew:       env.duration("API_SECURITY_HMAC_CLOCK_SKEW", defaultHMACClockSkew),
				NonceTTL:        env.duration("API_SECURITY_HMAC_NONCE_TTL", defaultHMACNonceTTL),
			},
		},
	}

	// Firestore and Pub/Sub projects follow the Firebase project when unset.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firebase.ProjectID
	}

	if len(cfg.Pricing.HighIncomeCountries) == 0 {
		cfg.Pricing.HighIncomeCountries = append([]string(nil), l.defaultTiers...)
	}
	for i, code := range cfg.Pricing.HighIncomeCountries {
		cfg.Pricing.HighIncomeCountries[i] = strings.ToUpper(strings.TrimSpace(code))
	}
	return cfg
}

// resolveSecrets replaces secret:// values in secret-bearing fields and
// enforces the required-secrets list.
func (l *loader) resolveSecrets(ctx context.Context, cfg *Config) error {
	fields := map[string]*string{
		"Session.SigningSecret":   &cfg.Session.SigningSecret,
		"PSP.StripeAPIKey":        &cfg.PSP.StripeAPIKey,
		"PSP.StripeWebhookSecret": &cfg.PSP.StripeWebhookSecret,
		"Newsletter.AuthToken":    &cfg.Newsletter.AuthToken,
		"Booking.SigningSecret":   &cfg.Booking.SigningSecret,
	}

	for _, field := range fields {
		value := strings.TrimSpace(*field)
		if ref, ok := secretReference(value); ok {
			if l.resolver == nil {
				return &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
			}
			resolved, err := l.resolver.ResolveSecret(ctx, ref)
			if err != nil {
				return &SecretError{Ref: ref, Err: err}
			}
			*field = resolved
		}
	}

	var missing []string
	seen := make(map[string]struct{})
	for _, name := range l.requiredSecrets {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		field, known := fields[name]
		if !known || strings.TrimSpace(*field) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingSecretsError{names: missing}
	}
	return nil
}

// secretReference normalises a secret reference, accepting the legacy sm://
// prefix, and reports whether the value is one.
func secretReference(value string) (string, bool) {
	if rest, ok := strings.CutPrefix(value, "sm://"); ok {
		return "secret://" + rest, true
	}
	if strings.HasPrefix(value, "secret://") {
		return value, true
	}
	return "", false
}

func (cfg Config) validate() error {
	var missing []string
	require := func(ok bool, field string) {
		if !ok {
			missing = append(missing, field)
		}
	}

	require(cfg.Server.Port != "", "Server.Port")
	require(cfg.Firebase.ProjectID != "", "Firebase.ProjectID")
	require(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	require(cfg.Session.TTL > 0, "Session.TTL")
	require(cfg.Pricing.DefaultCountry != "", "Pricing.DefaultCountry")
	require(len(cfg.Pricing.HighIncomeCountries) > 0, "Pricing.HighIncomeCountries")

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

// parseEnvFile reads KEY=VALUE lines. Blank lines, # comments, and an
// optional "export " prefix are tolerated; values may be quoted.
func parseEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", path, err)
	}
	return values, nil
}
