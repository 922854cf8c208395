package botframework

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/haasonsaas/teamsbridge/internal/net/ssrf"
)

// DefaultOpenIDMetadataURL is the Bot Framework channel OpenID document.
const DefaultOpenIDMetadataURL = "https://login.botframework.com/v1/.well-known/openidconfiguration"

// DefaultMinRefreshInterval is the shortest gap between key refetches
// triggered by tokens with an unknown kid.
const DefaultMinRefreshInterval = 5 * time.Minute

var (
	// ErrUnauthorized is returned for a missing or invalid bearer token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUntrustedServiceURL is returned when an activity names a service
	// endpoint outside the platform domains.
	ErrUntrustedServiceURL = errors.New("untrusted service url")
)

// AuthConfig configures inbound request verification.
type AuthConfig struct {
	// AppID is the expected token audience. Verification is skipped when
	// empty, which is how the local emulator connects.
	AppID             string
	OpenIDMetadataURL string
	// TrustedServiceSuffixes are the hosts an activity serviceUrl may use.
	TrustedServiceSuffixes []string
	HTTPClient             *http.Client
	CacheTTL               time.Duration
	// MinRefreshInterval bounds how often an unknown kid may trigger a
	// key refetch. Defaults to DefaultMinRefreshInterval.
	MinRefreshInterval time.Duration
	Logger             *slog.Logger
}

// Authenticator verifies the bearer token the channel service attaches to
// each webhook delivery.
type Authenticator struct {
	cfg    AuthConfig
	client *http.Client
	logger *slog.Logger

	mu          sync.Mutex
	issuer      string
	keys        map[string]*rsa.PublicKey
	cacheUntil  time.Time
	lastRefresh time.Time
	now         func() time.Time
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	if cfg.OpenIDMetadataURL == "" {
		cfg.OpenIDMetadataURL = DefaultOpenIDMetadataURL
	}
	if len(cfg.TrustedServiceSuffixes) == 0 {
		cfg.TrustedServiceSuffixes = ssrf.DefaultAllowedSuffixes
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.MinRefreshInterval <= 0 {
		cfg.MinRefreshInterval = DefaultMinRefreshInterval
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "botframework.auth"),
		keys:   map[string]*rsa.PublicKey{},
		now:    time.Now,
	}
}

// Enabled reports whether tokens are checked.
func (a *Authenticator) Enabled() bool {
	return strings.TrimSpace(a.cfg.AppID) != ""
}

// TrustedServiceURL reports whether raw is an https URL on a platform domain.
func (a *Authenticator) TrustedServiceURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != "https" {
		return false
	}
	return ssrf.HostAllowed(u.Hostname(), a.cfg.TrustedServiceSuffixes)
}

// Verify checks the Authorization header of r against the channel's
// signing keys and the activity's serviceUrl.
func (a *Authenticator) Verify(ctx context.Context, r *http.Request, activity *Activity) error {
	if !a.Enabled() {
		return nil
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}

	if err := a.ensureMetadata(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	a.mu.Lock()
	issuer := a.issuer
	a.mu.Unlock()

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(a.cfg.AppID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5 * time.Minute),
		jwt.WithTimeFunc(a.now),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return a.key(ctx, kid)
	}, opts...)
	if err != nil || !token.Valid {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	if activity == nil {
		return nil
	}
	if !a.TrustedServiceURL(activity.ServiceURL) {
		return ErrUntrustedServiceURL
	}
	claimURL, _ := claims["serviceurl"].(string)
	if claimURL == "" {
		claimURL, _ = claims["serviceUrl"].(string)
	}
	if claimURL != "" && !sameHost(claimURL, activity.ServiceURL) {
		return fmt.Errorf("%w: serviceurl claim does not match activity", ErrUnauthorized)
	}
	return nil
}

func (a *Authenticator) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, errors.New("token has no kid")
	}
	a.mu.Lock()
	key := a.keys[kid]
	canRefresh := key == nil && a.now().Sub(a.lastRefresh) >= a.cfg.MinRefreshInterval
	if canRefresh {
		a.lastRefresh = a.now()
	}
	a.mu.Unlock()
	if key != nil {
		return key, nil
	}
	if !canRefresh {
		return nil, fmt.Errorf("signing key %q not found", kid)
	}

	// Unknown kid: the channel may have rotated keys.
	if err := a.refresh(ctx); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if key := a.keys[kid]; key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("signing key %q not found", kid)
}

func (a *Authenticator) ensureMetadata(ctx context.Context) error {
	a.mu.Lock()
	fresh := len(a.keys) > 0 && a.now().Before(a.cacheUntil)
	a.mu.Unlock()
	if fresh {
		return nil
	}
	return a.refresh(ctx)
}

func (a *Authenticator) refresh(ctx context.Context) error {
	var meta struct {
		Issuer  string `json:"issuer"`
		JWKSURI string `json:"jwks_uri"`
	}
	if err := a.getJSON(ctx, a.cfg.OpenIDMetadataURL, &meta); err != nil {
		return fmt.Errorf("fetch openid metadata: %w", err)
	}
	if strings.TrimSpace(meta.JWKSURI) == "" {
		return errors.New("openid metadata missing jwks_uri")
	}

	var doc struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := a.getJSON(ctx, meta.JWKSURI, &doc); err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaPublicKey(k.N, k.E)
		if err != nil {
			a.logger.Warn("skipping unusable signing key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("jwks contains no usable rsa keys")
	}

	a.mu.Lock()
	a.issuer = strings.TrimSpace(meta.Issuer)
	a.keys = keys
	a.cacheUntil = a.now().Add(a.cfg.CacheTTL)
	a.lastRefresh = a.now()
	a.mu.Unlock()
	a.logger.Debug("refreshed signing keys", "count", len(keys))
	return nil
}

func (a *Authenticator) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func rsaPublicKey(nB64, eB64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	if n.Sign() <= 0 || e.Sign() <= 0 || !e.IsInt64() {
		return nil, errors.New("invalid rsa components")
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func sameHost(a, b string) bool {
	ua, errA := url.Parse(strings.TrimSpace(a))
	ub, errB := url.Parse(strings.TrimSpace(b))
	if errA != nil || errB != nil {
		return false
	}
	return ua.Host != "" && strings.EqualFold(ua.Host, ub.Host)
}
