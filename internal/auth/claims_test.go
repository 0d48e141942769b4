package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing-32b"

func TestGenerateAndParseAccessToken(t *testing.T) {
	user := &User{ID: "usr-001", Role: RoleAdmin}

	token, expires, err := GenerateAccessToken(user, testSecret, 15*time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateAccessToken() returned empty token")
	}
	if d := time.Until(expires); d < 14*time.Minute || d > 15*time.Minute {
		t.Errorf("expires in %v, want ~15m", d)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.UserID() != "usr-001" {
		t.Errorf("UserID() = %q, want %q", claims.UserID(), "usr-001")
	}
	if claims.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", claims.Role, RoleAdmin)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
}

func TestGenerateAccessToken_DefaultTTL(t *testing.T) {
	user := &User{ID: "usr-001", Role: RoleOperator}

	token, _, err := GenerateAccessToken(user, testSecret, 0)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	diff := claims.ExpiresAt.Time.Sub(time.Now().Add(defaultTokenTTL))
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("default TTL off by %v", diff)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	sign := func(t *testing.T, method jwt.SigningMethod, key any, claims CustomClaims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("signing: %v", err)
		}
		return s
	}
	valid := func() CustomClaims {
		return CustomClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "usr-001",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Role: RoleOperator,
		}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noSubject := valid()
	noSubject.Subject = ""
	noRole := valid()
	noRole.Role = ""

	good, _, err := GenerateAccessToken(&User{ID: "usr-001", Role: RoleOperator}, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"empty", "", testSecret},
		{"garbage", "not-a-valid-jwt", testSecret},
		{"malformed", "abc.def", testSecret},
		{"wrong secret", good, "another-secret-another-secret-xx"},
		{"expired", sign(t, jwt.SigningMethodHS256, []byte(testSecret), expired), testSecret},
		{"missing subject", sign(t, jwt.SigningMethodHS256, []byte(testSecret), noSubject), testSecret},
		{"missing role", sign(t, jwt.SigningMethodHS256, []byte(testSecret), noRole), testSecret},
		{"HS512 not accepted", sign(t, jwt.SigningMethodHS512, []byte(testSecret), valid()), testSecret},
		{"alg none", sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid()), testSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token, tt.secret)
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}
