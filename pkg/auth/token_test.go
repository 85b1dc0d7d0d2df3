package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "storefront",
		ExpirationMinutes: 30,
	}
}

func mustVerifier(t *testing.T, cfg config.JWTConfig) *Verifier {
	t.Helper()
	v, err := NewVerifier(cfg)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func TestMintAndVerifyAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{UserID: userID, Role: enums.RoleAgent})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := mustVerifier(t, cfg).Verify(token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.Role != enums.RoleAgent {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("expected generated jti")
	}

	exp := now.Add(cfg.TokenTTL())
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v", exp, claims.ExpiresAt.Time)
	}
}

func TestVerifyInvalidSignature(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleCustomer})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	if _, err := mustVerifier(t, cfg).Verify(token+"x"); err == nil {
		t.Fatal("expected invalid signature error")
	}

	other := cfg
	other.Secret = "other"
	if _, err := mustVerifier(t, other).Verify(token); err == nil {
		t.Fatal("expected signature mismatch for different secret")
	}
}

func TestVerifyWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleAdmin})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	other := cfg
	other.Issuer = "elsewhere"
	if _, err := mustVerifier(t, other).Verify(token); err == nil {
		t.Fatal("expected issuer error")
	}
}

func TestVerifyExpired(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Hour), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleCustomer})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	_, err = mustVerifier(t, cfg).Verify(token)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	cfg := testJWTConfig()
	claims := AccessTokenClaims{
		UserID: uuid.New(),
		Role:   enums.Role("Root"),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := mustVerifier(t, cfg).Verify(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestMintAccessTokenValidation(t *testing.T) {
	cfg := testJWTConfig()
	cases := map[string]struct {
		cfg     config.JWTConfig
		payload AccessTokenPayload
	}{
		"empty role":   {cfg, AccessTokenPayload{UserID: uuid.New()}},
		"nil user":     {cfg, AccessTokenPayload{Role: enums.RoleAdmin}},
		"no secret":    {config.JWTConfig{Issuer: "x", ExpirationMinutes: 1}, AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleAdmin}},
		"zero expires": {config.JWTConfig{Secret: "s", Issuer: "x"}, AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleAdmin}},
	}
	for name, tc := range cases {
		if _, err := MintAccessToken(tc.cfg, time.Now(), tc.payload); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestVerifyToleratesClockSkew(t *testing.T) {
	cfg := testJWTConfig()
	// Issued by a node whose clock runs 10s ahead.
	token, err := MintAccessToken(cfg, time.Now().Add(10*time.Second), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleCustomer})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	if _, err := mustVerifier(t, cfg).Verify(token); err != nil {
		t.Fatalf("expected token within skew to verify: %v", err)
	}
}

func TestVerifyRejectsForeignSubject(t *testing.T) {
	cfg := testJWTConfig()
	claims := AccessTokenClaims{
		UserID: uuid.New(),
		Role:   enums.RoleCustomer,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := mustVerifier(t, cfg).Verify(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	cfg := testJWTConfig()
	claims := AccessTokenClaims{
		UserID: uuid.New(),
		Role:   enums.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := mustVerifier(t, cfg).Verify(token); err == nil {
		t.Fatal("expected HS512 token to be rejected")
	}
}

func TestNewVerifierRequiresSecretAndIssuer(t *testing.T) {
	if _, err := NewVerifier(config.JWTConfig{Issuer: "storefront"}); err == nil {
		t.Fatal("expected secret error")
	}
	if _, err := NewVerifier(config.JWTConfig{Secret: "secret"}); err == nil {
		t.Fatal("expected issuer error")
	}
}
