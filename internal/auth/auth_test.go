package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidate(t *testing.T) {
	s := NewService("secret", time.Hour)

	tok, err := s.GenerateToken("ops")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := s.ValidateToken(tok)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Operator != "ops" || claims.Subject != "ops" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidate_Rejects(t *testing.T) {
	s := NewService("secret", time.Hour)
	other := NewService("other", time.Hour)

	foreign, err := other.GenerateToken("ops")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ValidateToken(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("token signed with another secret: err = %v", err)
	}

	if _, err := s.ValidateToken("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage token: err = %v", err)
	}

	// alg none must never be accepted
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Operator:         "ops",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "blockrelay"},
	})
	none, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ValidateToken(none); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("unsigned token: err = %v", err)
	}
}

func TestValidate_Expired(t *testing.T) {
	s := NewService("secret", time.Minute)
	issued := time.Now().Add(-time.Hour)
	s.now = func() time.Time { return issued }

	tok, err := s.GenerateToken("ops")
	if err != nil {
		t.Fatal(err)
	}
	s.now = time.Now
	if _, err := s.ValidateToken(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: err = %v", err)
	}
}

func TestNoSecret(t *testing.T) {
	s := NewService("", 0)
	if s.Enabled() {
		t.Error("service without secret reports enabled")
	}
	if _, err := s.GenerateToken("ops"); !errors.Is(err, ErrNoSecret) {
		t.Errorf("GenerateToken err = %v", err)
	}
}
