package botframework

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testIssuer = "https://api.botframework.com"

type authFixture struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	auth     *Authenticator
	jwksHits atomic.Int32
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	f := &authFixture{key: key}
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/openid", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"issuer":"` + testIssuer + `","jwks_uri":"` + srv.URL + `/keys"}`))
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		f.jwksHits.Add(1)
		n := base64.RawURLEncoding.EncodeToString(key.N.Bytes())
		e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes())
		_, _ = w.Write([]byte(`{"keys":[{"kid":"k1","kty":"RSA","n":"` + n + `","e":"` + e + `"}]}`))
	})

	f.server = srv
	f.auth = NewAuthenticator(AuthConfig{
		AppID:             "app-id",
		OpenIDMetadataURL: srv.URL + "/openid",
		HTTPClient:        srv.Client(),
	})
	return f
}

func (f *authFixture) sign(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":        testIssuer,
		"aud":        "app-id",
		"exp":        time.Now().Add(time.Hour).Unix(),
		"nbf":        time.Now().Add(-time.Minute).Unix(),
		"serviceurl": "https://smba.trafficmanager.net/amer/",
	}
}

func requestWithToken(token string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/messages", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestAuthenticator_Verify(t *testing.T) {
	f := newAuthFixture(t)
	activity := &Activity{ServiceURL: "https://smba.trafficmanager.net/amer/"}

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	wrongAud := validClaims()
	wrongAud["aud"] = "someone-else"

	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "https://evil.example.com"

	otherService := validClaims()
	otherService["serviceurl"] = "https://other.trafficmanager.net/emea/"

	tests := []struct {
		name     string
		token    string
		activity *Activity
		wantErr  error
	}{
		{name: "valid", token: f.sign(t, "k1", validClaims()), activity: activity},
		{name: "missing token", token: "", activity: activity, wantErr: ErrUnauthorized},
		{name: "garbage token", token: "a.b.c", activity: activity, wantErr: ErrUnauthorized},
		{name: "expired", token: f.sign(t, "k1", expired), activity: activity, wantErr: ErrUnauthorized},
		{name: "wrong audience", token: f.sign(t, "k1", wrongAud), activity: activity, wantErr: ErrUnauthorized},
		{name: "wrong issuer", token: f.sign(t, "k1", wrongIssuer), activity: activity, wantErr: ErrUnauthorized},
		{name: "unknown kid", token: f.sign(t, "k2", validClaims()), activity: activity, wantErr: ErrUnauthorized},
		{name: "service url mismatch", token: f.sign(t, "k1", otherService), activity: activity, wantErr: ErrUnauthorized},
		{
			name:     "untrusted activity service url",
			token:    f.sign(t, "k1", validClaims()),
			activity: &Activity{ServiceURL: "https://attacker.example.com/"},
			wantErr:  ErrUntrustedServiceURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.auth.Verify(context.Background(), requestWithToken(tt.token), tt.activity)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Verify() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAuthenticator_UnknownKidRefreshIsRateLimited(t *testing.T) {
	f := newAuthFixture(t)
	activity := &Activity{ServiceURL: "https://smba.trafficmanager.net/amer/"}
	now := time.Now()
	f.auth.now = func() time.Time { return now }

	if err := f.auth.Verify(context.Background(), requestWithToken(f.sign(t, "k1", validClaims())), activity); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got := f.jwksHits.Load(); got != 1 {
		t.Fatalf("jwks fetches after first verify = %d, want 1", got)
	}

	forged := f.sign(t, "forged", validClaims())
	for i := 0; i < 5; i++ {
		err := f.auth.Verify(context.Background(), requestWithToken(forged), activity)
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Verify(forged kid) error = %v, want ErrUnauthorized", err)
		}
	}
	if got := f.jwksHits.Load(); got != 1 {
		t.Errorf("jwks fetches within refresh interval = %d, want 1", got)
	}

	now = now.Add(DefaultMinRefreshInterval + time.Second)
	_ = f.auth.Verify(context.Background(), requestWithToken(forged), activity)
	_ = f.auth.Verify(context.Background(), requestWithToken(forged), activity)
	if got := f.jwksHits.Load(); got != 2 {
		t.Errorf("jwks fetches after interval = %d, want 2", got)
	}
}

func TestAuthenticator_DisabledWithoutAppID(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{})
	if auth.Enabled() {
		t.Fatal("expected authenticator to be disabled")
	}
	if err := auth.Verify(context.Background(), requestWithToken(""), &Activity{}); err != nil {
		t.Errorf("Verify() error = %v, want nil", err)
	}
}

func TestAuthenticator_TrustedServiceURL(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{})
	tests := []struct {
		url      string
		expected bool
	}{
		{"https://smba.trafficmanager.net/amer/", true},
		{"https://smba.botframework.com/", true},
		{"http://smba.trafficmanager.net/amer/", false},
		{"https://evilbotframework.com/", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := auth.TrustedServiceURL(tt.url); got != tt.expected {
			t.Errorf("TrustedServiceURL(%q) = %v, want %v", tt.url, got, tt.expected)
		}
	}
}

func TestRSAPublicKey_Invalid(t *testing.T) {
	if _, err := rsaPublicKey("!!", "AQAB"); err == nil {
		t.Error("expected decode error")
	}
	if _, err := rsaPublicKey("", "AQAB"); err == nil {
		t.Error("expected error for empty modulus")
	}
}
