package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var hsSecret = []byte("0123456789abcdef0123456789abcdef")

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestNewManagerValidation(t *testing.T) {
	pub, _ := newEdKeys(t)
	cases := []Config{
		{AccessTTL: 0, SigningMethod: MethodHS256, PrivateKey: hsSecret},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		{AccessTTL: time.Minute, SigningMethod: MethodEd25519},
		{AccessTTL: time.Minute, SigningMethod: "rs256", PublicKey: pub},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: hsSecret, Leeway: 5 * time.Minute},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestCreateAndParseEd25519(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		Issuer:        "gosession-dev",
		Audience:      "erp",
		KeyID:         "k1",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, exp, err := m.CreateAccess("u1", "s1", "hr_admin")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if time.Until(exp) <= 14*time.Minute {
		t.Fatalf("unexpected expiry %v", exp)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UID != "u1" || claims.SID != "s1" || claims.Role != "hr_admin" || claims.Subject != "u1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifyOnlyManagerCannotIssue(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, _, err := m.CreateAccess("u", "s", ""); err == nil {
		t.Fatal("expected issue without private key to fail")
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := AccessClaims{UID: "u", SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(hsSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseAccessExpiredAndLeeway(t *testing.T) {
	now := time.Date(2032, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: hsSecret, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _, err := issuer.CreateAccess("u", "s", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	later := now.Add(90 * time.Second)
	strict, _ := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: hsSecret, Now: func() time.Time { return later }})
	if _, err := strict.ParseAccess(token); !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}

	lenient, _ := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: hsSecret, Leeway: time.Minute, Now: func() time.Time { return later }})
	if _, err := lenient.ParseAccess(token); err != nil {
		t.Fatalf("leeway should accept: %v", err)
	}
}

func TestParseAccessIssuerAudienceAndKid(t *testing.T) {
	base := Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: hsSecret, Issuer: "a", Audience: "erp", KeyID: "k1"}
	m, _ := NewManager(base)
	token, _, err := m.CreateAccess("u", "s", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for name, mutate := range map[string]func(*Config){
		"issuer":   func(c *Config) { c.Issuer = "b" },
		"audience": func(c *Config) { c.Audience = "crm" },
		"kid":      func(c *Config) { c.KeyID = "k2" },
	} {
		cfg := base
		mutate(&cfg)
		other, _ := NewManager(cfg)
		if _, err := other.ParseAccess(token); err == nil {
			t.Fatalf("%s mismatch should be rejected", name)
		}
	}
}

func TestParseAccessRequiresSessionClaims(t *testing.T) {
	m, _ := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: hsSecret})
	claims := gjwt.RegisteredClaims{Subject: "u", ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(hsSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("token without uid/sid should be rejected")
	}
}
