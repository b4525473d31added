package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
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
)

const metricNamespace = "github.com/hanko-field/quickorder/internal/platform/secrets"

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver resolves secret:// references against Google Secret Manager and caches the values
// for the process lifetime.
type Resolver struct {
	client     secretManagerClient
	ownsClient bool
	projectID  string
	logger     *zap.Logger
	callOpts   []gax.CallOption

	meter     metric.Meter
	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter

	mu    sync.RWMutex
	cache map[string]string
}

// Option customises Resolver construction.
type Option func(*Resolver)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMeter injects a custom OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(r *Resolver) {
		if m != nil {
			r.meter = m
		}
	}
}

// WithClient injects a Secret Manager client, mainly for tests.
func WithClient(client secretManagerClient) Option {
	return func(r *Resolver) {
		r.client = client
	}
}

// NewResolver builds a Resolver. projectID is used when a reference carries no ?project= override.
func NewResolver(ctx context.Context, projectID string, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		projectID: strings.TrimSpace(projectID),
		logger:    zap.NewNop(),
		cache:     make(map[string]string),
		callOpts: []gax.CallOption{
			gax.WithRetry(func() gax.Retryer {
				return gax.OnCodes([]codes.Code{codes.Unavailable, codes.DeadlineExceeded}, gax.Backoff{
					Initial:    100 * time.Millisecond,
					Max:        2 * time.Second,
					Multiplier: 2,
				})
			}),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.registerInstruments()
	if r.client == nil {
		client, err := secretManagerClientFactory(ctx)
		if err != nil {
			return nil, fmt.Errorf("secrets: create client: %w", err)
		}
		r.client = client
		r.ownsClient = true
	}
	return r, nil
}

func (r *Resolver) registerInstruments() {
	if r.meter == nil {
		r.meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	latency, err := r.meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for Secret Manager fetches"),
	)
	if err != nil {
		r.logger.Warn("secrets: unable to register latency metric", zap.Error(err))
	} else {
		r.latency = latency
	}
	cacheHits, err := r.meter.Int64Counter(
		"secrets.fetch.cache_hits",
		metric.WithDescription("Count of cache hits when resolving secrets"),
	)
	if err != nil {
		r.logger.Warn("secrets: unable to register cache hit metric", zap.Error(err))
	} else {
		r.cacheHits = cacheHits
	}
}

// Close releases the underlying client when the resolver created it.
func (r *Resolver) Close() error {
	if r.ownsClient && r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ResolveSecret implements config.SecretResolver.
func (r *Resolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	project := parsed.project
	if project == "" {
		project = r.projectID
	}
	if project == "" {
		return "", fmt.Errorf("secrets: no project for %s", parsed.canonical)
	}
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, parsed.secret, parsed.version)

	r.mu.RLock()
	value, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		r.recordCacheHit(ctx, parsed)
		return value, nil
	}

	started := time.Now()
	resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name}, r.callOpts...)
	r.recordLatency(ctx, time.Since(started), err)
	if err != nil {
		r.logger.Warn("secrets: access failed", zap.String("secret", parsed.secret), zap.Error(err))
		return "", fmt.Errorf("secrets: access %s: %w", parsed.canonical, err)
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secrets: empty payload for %s", parsed.canonical)
	}
	value = string(resp.GetPayload().GetData())

	r.mu.Lock()
	r.cache[name] = value
	r.mu.Unlock()
	return value, nil
}

func (r *Resolver) recordLatency(ctx context.Context, d time.Duration, err error) {
	if r.latency == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("source", "secret_manager")}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	r.latency.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributes(attrs...))
}

func (r *Resolver) recordCacheHit(ctx context.Context, ref reference) {
	if r.cacheHits == nil {
		return
	}
	r.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", ref.secret)))
}

type reference struct {
	canonical string
	secret    string
	version   string
	project   string
}

// parseReference reads secret://NAME[?version=N&project=P]. sm:// is accepted as an alias.
func parseReference(ref string) (reference, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	if strings.HasPrefix(ref, "sm://") {
		ref = "secret://" + strings.TrimPrefix(ref, "sm://")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	secret := strings.Trim(u.Host+u.Path, "/")
	if secret == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	// Secret Manager ids cannot contain slashes.
	secret = strings.ReplaceAll(secret, "/", "-")

	query := u.Query()
	version := strings.TrimSpace(query.Get("version"))
	if version == "" {
		version = "latest"
	}
	canonical := *u
	canonical.RawQuery = ""
	return reference{
		canonical: canonical.String(),
		secret:    secret,
		version:   version,
		project:   strings.TrimSpace(query.Get("project")),
	}, nil
}
