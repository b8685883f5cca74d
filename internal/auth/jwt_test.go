package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 44-character base64 string, as produced by `openssl rand -base64 32`
const testSecret = "wJ6Qk8Qn1v9Qw1Zb2l8Qk9J3p6Qk8Qn1v9Qw1Zb2l8Qk="

func TestGenerateAccessToken(t *testing.T) {
	svc := NewJWTService(testSecret)

	tests := []struct {
		name     string
		username string
		courses  []string
		staff    bool
		wantErr  bool
	}{
		{
			name:     "valid access token",
			username: "instructor1",
			courses:  []string{"course-v1:OpenX+Demo+2021"},
			wantErr:  false,
		},
		{
			name:     "empty username",
			username: "",
			wantErr:  true,
		},
		{
			name:     "staff token without courses",
			username: "admin",
			staff:    true,
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := svc.GenerateAccessToken(tt.username, tt.courses, tt.staff)
			if (err != nil) != tt.wantErr {
				t.Errorf("GenerateAccessToken() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && token == "" {
				t.Error("GenerateAccessToken() returned empty token")
			}
		})
	}
}

func TestGenerateRefreshToken(t *testing.T) {
	svc := NewJWTService(testSecret)

	if _, err := svc.GenerateRefreshToken(""); !errors.Is(err, ErrEmptyUsername) {
		t.Errorf("GenerateRefreshToken(\"\") error = %v, want ErrEmptyUsername", err)
	}

	token, err := svc.GenerateRefreshToken("instructor1")
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}
	if token == "" {
		t.Error("GenerateRefreshToken() returned empty token")
	}
}

func TestValidateToken(t *testing.T) {
	svc := NewJWTService(testSecret)

	token, err := svc.GenerateAccessToken("instructor1", []string{"course-v1:OpenX+Demo+2021"}, false)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}

	if claims.Subject != "instructor1" {
		t.Errorf("claims.Subject = %q, want instructor1", claims.Subject)
	}
	if claims.Type != TokenTypeAccess {
		t.Errorf("claims.Type = %q, want %q", claims.Type, TokenTypeAccess)
	}
	if len(claims.Courses) != 1 || claims.Courses[0] != "course-v1:OpenX+Demo+2021" {
		t.Errorf("claims.Courses = %v, want one demo course", claims.Courses)
	}
}

func TestValidateToken_InvalidInputs(t *testing.T) {
	svc := NewJWTService(testSecret)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "garbage token", token: "not.a.jwt"},
		{name: "tampered token", token: mustToken(t, svc) + "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ValidateToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	svc := NewJWTService(testSecret)
	other := NewJWTService("completely-different-secret-value-here!")

	token := mustToken(t, svc)

	if _, err := other.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken() with wrong secret error = %v, want ErrInvalidToken", err)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	// Zero leeway so an already-expired token fails immediately
	svc := NewJWTServiceWithLeeway(testSecret, 0)

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "instructor1",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-30 * time.Minute)),
		},
		Type: TokenTypeAccess,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}

	if _, err := svc.ValidateToken(signed); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("ValidateToken() error = %v, want ErrExpiredToken", err)
	}
}

func TestValidateToken_RejectsWrongAlgorithm(t *testing.T) {
	svc := NewJWTService(testSecret)

	// Token signed with "none" algorithm must be rejected
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "instructor1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Type: TokenTypeAccess,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}

	if _, err := svc.ValidateToken(signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestValidateToken_Rotation(t *testing.T) {
	oldSvc := NewJWTService("old-secret-that-was-rotated-out-12345")
	token := mustToken(t, oldSvc)

	// Service rotated to a new secret keeps validating old tokens
	rotated := NewJWTServiceWithRotation(testSecret, "old-secret-that-was-rotated-out-12345")
	claims, err := rotated.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() after rotation error = %v", err)
	}
	if claims.Subject != "instructor1" {
		t.Errorf("claims.Subject = %q, want instructor1", claims.Subject)
	}

	// New tokens are signed with the current secret
	newToken, err := rotated.GenerateAccessToken("instructor2", nil, false)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	current := NewJWTService(testSecret)
	if _, err := current.ValidateToken(newToken); err != nil {
		t.Errorf("new token does not validate with current secret: %v", err)
	}
}

func TestClaims_AllowsCourse(t *testing.T) {
	tests := []struct {
		name     string
		claims   Claims
		courseID string
		want     bool
	}{
		{
			name:     "staff allows any course",
			claims:   Claims{Staff: true},
			courseID: "course-v1:OpenX+Demo+2021",
			want:     true,
		},
		{
			name:     "listed course allowed",
			claims:   Claims{Courses: []string{"course-v1:OpenX+Demo+2021"}},
			courseID: "course-v1:OpenX+Demo+2021",
			want:     true,
		},
		{
			name:     "unlisted course denied",
			claims:   Claims{Courses: []string{"course-v1:OpenX+Demo+2021"}},
			courseID: "course-v1:OpenX+Other+2021",
			want:     false,
		},
		{
			name:     "no courses denied",
			claims:   Claims{},
			courseID: "course-v1:OpenX+Demo+2021",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.claims.AllowsCourse(tt.courseID); got != tt.want {
				t.Errorf("AllowsCourse(%q) = %v, want %v", tt.courseID, got, tt.want)
			}
		})
	}
}

// mustToken generates a valid access token or fails the test.
func mustToken(t *testing.T, svc *JWTService) string {
	t.Helper()
	token, err := svc.GenerateAccessToken("instructor1", nil, false)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Fatalf("token is not a JWT: %q", token)
	}
	return token
}
