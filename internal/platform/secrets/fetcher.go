// Package secrets resolves secret:// configuration references through Google
// Secret Manager. Resolved values are cached for the process lifetime, and a
// plain-text fallback file covers local development without Cloud credentials.
package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultEnvironment  = "local"
	defaultFallbackPath = ".secrets.local"
	metricNamespace     = "github.com/lumalingua/api/internal/platform/secrets"
)

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// secretRef is a parsed secret://name?project=...&version=... reference.
type secretRef struct {
	name    string
	project string
	version string
}

func (r secretRef) canonical() string { return "secret://" + r.name }

func (r secretRef) cacheKey() string { return r.name + "@" + r.version + "@" + r.project }

func parseRef(raw string) (secretRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return secretRef{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return secretRef{}, fmt.Errorf("secrets: malformed reference %q: %w", raw, err)
	}
	if u.Scheme != "secret" {
		return secretRef{}, fmt.Errorf("secrets: unsupported scheme %q in %q", u.Scheme, raw)
	}

	ref := secretRef{
		name:    strings.Trim(u.Host+u.Path, "/"),
		project: strings.TrimSpace(u.Query().Get("project")),
		version: strings.TrimSpace(u.Query().Get("version")),
	}
	if ref.name == "" {
		return secretRef{}, fmt.Errorf("secrets: reference %q has no secret name", raw)
	}
	if ref.version == "" {
		ref.version = "latest"
	}
	return ref, nil
}

// Fetcher resolves secret references against Secret Manager with a local
// fallback file. Safe for concurrent use.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger

	env            string
	defaultProject string
	envProjects    map[string]string

	fallbackPath string
	fallback     func() map[string]string

	meter           metric.Meter
	fetchLatency    metric.Float64Histogram
	cacheHits       metric.Int64Counter
	latencyEnabled  bool
	cacheHitEnabled bool

	mu    sync.RWMutex
	cache map[string]string
}

// Option customises Fetcher construction.
type Option func(*Fetcher)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithEnvironment selects which entry of the environment project map applies.
func WithEnvironment(env string) Option {
	return func(f *Fetcher) {
		if env = strings.ToLower(strings.TrimSpace(env)); env != "" {
			f.env = env
		}
	}
}

// WithDefaultProject sets the project used when a reference names none.
func WithDefaultProject(projectID string) Option {
	return func(f *Fetcher) { f.defaultProject = strings.TrimSpace(projectID) }
}

// WithProjectMap supplies per-environment project IDs.
func WithProjectMap(m map[string]string) Option {
	return func(f *Fetcher) {
		f.envProjects = make(map[string]string, len(m))
		for env, project := range m {
			f.envProjects[strings.ToLower(strings.TrimSpace(env))] = strings.TrimSpace(project)
		}
	}
}

// WithFallbackFile overrides the local fallback secrets file path. An empty
// path disables the fallback.
func WithFallbackFile(path string) Option {
	return func(f *Fetcher) { f.fallbackPath = strings.TrimSpace(path) }
}

// WithSecretManagerClient injects a preconfigured client, primarily for tests.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(f *Fetcher) { f.client = client }
}

// WithMeter overrides the meter used for fetch instrumentation. The global
// meter provider is used when none is supplied.
func WithMeter(m metric.Meter) Option {
	return func(f *Fetcher) {
		if m != nil {
			f.meter = m
		}
	}
}

// NewFetcher builds a Fetcher. When no client is injected and the Secret
// Manager client cannot be constructed, the fetcher still works off the
// fallback file alone.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		logger:       zap.NewNop(),
		env:          defaultEnvironment,
		fallbackPath: defaultFallbackPath,
		cache:        make(map[string]string),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.fallback = sync.OnceValue(f.loadFallbackFile)
	f.registerMetrics()

	if f.client == nil {
		client, err := newSecretManagerClient(ctx)
		if err != nil {
			f.logger.Warn("secret manager client unavailable, running on fallback file only", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

func (f *Fetcher) registerMetrics() {
	if f.meter == nil {
		f.meter = otel.GetMeterProvider().Meter(metricNamespace)
	}

	latency, err := f.meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret fetch attempts"),
	)
	if err != nil {
		f.logger.Warn("unable to register secret fetch latency metric", zap.Error(err))
	} else {
		f.fetchLatency = latency
		f.latencyEnabled = true
	}

	hits, err := f.meter.Int64Counter(
		"secrets.fetch.cache_hits",
		metric.WithDescription("Count of cache hits when resolving secrets"),
	)
	if err != nil {
		f.logger.Warn("unable to register secret cache hit metric", zap.Error(err))
	} else {
		f.cacheHits = hits
		f.cacheHitEnabled = true
	}
}

// Close releases the underlying client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the value behind a secret:// reference.
func (f *Fetcher) Resolve(ctx context.Context, raw string) (string, error) {
	ref, err := parseRef(raw)
	if err != nil {
		return "", err
	}

	start := time.Now()

	f.mu.RLock()
	value, cached := f.cache[ref.cacheKey()]
	f.mu.RUnlock()
	if cached {
		f.recordCacheHit(ctx, ref)
		f.recordLatency(ctx, time.Since(start), "cache", nil)
		return value, nil
	}

	value, source, err := f.fetch(ctx, ref)
	if err != nil {
		f.recordLatency(ctx, time.Since(start), "error", err)
		return "", err
	}
	f.recordLatency(ctx, time.Since(start), source, nil)

	f.mu.Lock()
	f.cache[ref.cacheKey()] = value
	f.mu.Unlock()
	return value, nil
}

// Invalidate forgets cached values for the reference so the next Resolve
// fetches them again.
func (f *Fetcher) Invalidate(raw string) {
	ref, err := parseRef(raw)
	if err != nil {
		return
	}
	prefix := ref.name + "@"

	f.mu.Lock()
	for key := range f.cache {
		if strings.HasPrefix(key, prefix) {
			delete(f.cache, key)
		}
	}
	f.mu.Unlock()
}

func (f *Fetcher) fetch(ctx context.Context, ref secretRef) (string, string, error) {
	project := f.resolveProject(ref)

	if f.client != nil && project != "" {
		resource := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.name, ref.version)
		resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
		switch {
		case err == nil:
			if resp.GetPayload() == nil {
				return "", "", fmt.Errorf("secrets: empty payload for %s", resource)
			}
			return string(resp.GetPayload().GetData()), "secretmanager", nil
		case retryableWithFallback(err):
			f.logger.Debug("secret manager access failed, trying fallback file",
				zap.String("ref", ref.canonical()), zap.Error(err))
		default:
			return "", "", fmt.Errorf("secrets: fetch %s: %w", ref.canonical(), err)
		}
	}

	if value, ok := f.fallback()[ref.name]; ok {
		return value, "fallback", nil
	}
	return "", "", fmt.Errorf("secrets: no value available for %s", ref.canonical())
}

func (f *Fetcher) recordLatency(ctx context.Context, d time.Duration, source string, err error) {
	if !f.latencyEnabled {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("source", source)}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	f.fetchLatency.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(attrs...))
}

func (f *Fetcher) recordCacheHit(ctx context.Context, ref secretRef) {
	if !f.cacheHitEnabled {
		return
	}
	f.cacheHits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("secret", maskRef(ref.canonical()))))
}

// maskRef hashes the reference so metric labels never leak secret names.
func maskRef(ref string) string {
	h := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(h[:8])
}

func (f *Fetcher) resolveProject(ref secretRef) string {
	if ref.project != "" {
		return ref.project
	}
	if project := f.envProjects[f.env]; project != "" {
		return project
	}
	return f.defaultProject
}

// loadFallbackFile parses the fallback file once. The format is one
// reference per line, "secret://name=value", with # comments. Legacy
// "sm://" prefixes are accepted too.
func (f *Fetcher) loadFallbackFile() map[string]string {
	values := make(map[string]string)
	if f.fallbackPath == "" {
		return values
	}

	file, err := os.Open(f.fallbackPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.logger.Warn("cannot read fallback secrets file",
				zap.String("path", f.fallbackPath), zap.Error(err))
		}
		return values
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if legacy, ok := strings.CutPrefix(key, "sm://"); ok {
			key = "secret://" + legacy
		}
		ref, err := parseRef(key)
		if err != nil {
			f.logger.Debug("skipping malformed fallback entry", zap.String("key", key))
			continue
		}
		values[ref.name] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		f.logger.Warn("error while scanning fallback secrets file",
			zap.String("path", f.fallbackPath), zap.Error(err))
	}
	return values
}

// retryableWithFallback reports whether the error is one where the local
// fallback file should be consulted instead of failing outright.
func retryableWithFallback(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
