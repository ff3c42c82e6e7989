package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func rsaPublicKeyToJWK(key *rsa.PrivateKey, kid string) JWKSKey {
	return JWKSKey{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}
}

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	return key
}

func jwksServer(t *testing.T, keys ...JWKSKey) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(JWKSResponse{Keys: keys})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestJWKSCache_GetKey(t *testing.T) {
	privateKey := generateKey(t)
	srv, hits := jwksServer(t, rsaPublicKeyToJWK(privateKey, "key-1"))

	cache := NewJWKSCache(srv.URL, 5*time.Minute)
	key, err := cache.GetKey("key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.N.Cmp(privateKey.PublicKey.N) != 0 {
		t.Error("expected modulus to match")
	}
	if key.E != privateKey.PublicKey.E {
		t.Errorf("expected exponent %d, got %d", privateKey.PublicKey.E, key.E)
	}

	if _, err := cache.GetKey("key-1"); err != nil {
		t.Fatalf("unexpected error on cached lookup: %v", err)
	}
	if n := atomic.LoadInt32(hits); n != 1 {
		t.Errorf("expected 1 fetch, got %d", n)
	}
}

func TestJWKSCache_ExpiredRefetches(t *testing.T) {
	privateKey := generateKey(t)
	srv, hits := jwksServer(t, rsaPublicKeyToJWK(privateKey, "key-1"))

	cache := NewJWKSCache(srv.URL, time.Nanosecond)
	cache.GetKey("key-1")
	time.Sleep(time.Millisecond)
	cache.GetKey("key-1")

	if n := atomic.LoadInt32(hits); n != 2 {
		t.Errorf("expected 2 fetches, got %d", n)
	}
}

func TestJWKSCache_UnknownKid(t *testing.T) {
	srv, _ := jwksServer(t, rsaPublicKeyToJWK(generateKey(t), "key-1"))

	cache := NewJWKSCache(srv.URL, 5*time.Minute)
	if _, err := cache.GetKey("key-2"); err == nil {
		t.Fatal("expected error for unknown kid")
	}
}

func TestJWKSCache_SkipsNonRSAKeys(t *testing.T) {
	srv, _ := jwksServer(t, JWKSKey{Kty: "EC", Kid: "ec-1"})

	cache := NewJWKSCache(srv.URL, 5*time.Minute)
	if _, err := cache.GetKey("ec-1"); err == nil {
		t.Fatal("expected EC key to be ignored")
	}
}

func TestJWKSCache_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, 5*time.Minute)
	if _, err := cache.GetKey("key-1"); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestJWKSCache_NoURL(t *testing.T) {
	cache := NewJWKSCache("", 5*time.Minute)
	if _, err := cache.GetKey("key-1"); err == nil {
		t.Fatal("expected error without a JWKS URL")
	}
}

func TestParseRSAPublicKey_InvalidEncoding(t *testing.T) {
	if _, err := parseRSAPublicKey(JWKSKey{N: "!!!", E: "AQAB"}); err == nil {
		t.Error("expected error for bad modulus")
	}
	if _, err := parseRSAPublicKey(JWKSKey{N: "AQAB", E: "!!!"}); err == nil {
		t.Error("expected error for bad exponent")
	}
}

func TestJWKSKeyFunc_NoKid(t *testing.T) {
	keyFunc := jwksKeyFunc("http://unused.invalid")
	token := &jwt.Token{Header: map[string]interface{}{}}
	if _, err := keyFunc(token); err == nil {
		t.Fatal("expected error for token without kid")
	}
}

func TestDiscoverOIDC(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":   "https://id.clinic.test",
			"jwks_uri": "https://id.clinic.test/keys",
		})
	}))
	defer srv.Close()

	provider, err := DiscoverOIDC(srv.URL + "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.JWKSURI != "https://id.clinic.test/keys" {
		t.Errorf("expected jwks_uri, got %s", provider.JWKSURI)
	}
}

func TestDiscoverOIDC_MissingJWKSURI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"issuer": "https://id.clinic.test"})
	}))
	defer srv.Close()

	if _, err := DiscoverOIDC(srv.URL); err == nil {
		t.Fatal("expected error when jwks_uri is missing")
	}
}

func TestJWTMiddleware_RS256ViaJWKS(t *testing.T) {
	privateKey := generateKey(t)
	srv, _ := jwksServer(t, rsaPublicKeyToJWK(privateKey, "key-1"))

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims())
	token.Header["kid"] = "key-1"
	signed, err := token.SignedString(privateKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var clinicID interface{}
	handler := func(c echo.Context) error {
		clinicID = c.Get("jwt_clinic_id")
		return nil
	}

	if err := JWTMiddleware(JWTConfig{JWKSURL: srv.URL})(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clinicID != "northside" {
		t.Errorf("expected northside, got %v", clinicID)
	}
}
