package api

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(testSecret, "installer", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error: %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error: %v", err)
	}
	if claims.Subject != "installer" {
		t.Errorf("Subject = %q", claims.Subject)
	}
	if claims.ID == "" {
		t.Error("token has no jti")
	}
	if claims.ExpiresAt == nil || time.Until(claims.ExpiresAt.Time) > time.Hour {
		t.Errorf("ExpiresAt = %v", claims.ExpiresAt)
	}
}

func TestIssueToken_Validation(t *testing.T) {
	if _, err := IssueToken("", "installer", time.Hour); err == nil {
		t.Error("empty secret should fail")
	}
	if _, err := IssueToken(testSecret, "", time.Hour); err == nil {
		t.Error("empty subject should fail")
	}
}

func TestIssueToken_DefaultTTL(t *testing.T) {
	token, err := IssueToken(testSecret, "installer", 0)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatal(err)
	}
	if d := time.Until(claims.ExpiresAt.Time); d < 23*time.Hour {
		t.Errorf("default ttl gives %v, want about 24h", d)
	}
}

func signClaims(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestParseToken_Rejects(t *testing.T) {
	now := time.Now()
	valid := jwt.RegisteredClaims{
		Subject:   "installer",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
	noSubject := valid
	noSubject.Subject = ""
	noExpiry := valid
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
	}{
		{"expired", signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), expired)},
		{"missing subject", signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), noSubject)},
		{"missing expiry", signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), noExpiry)},
		{"wrong algorithm", signClaims(t, jwt.SigningMethodHS512, []byte(testSecret), valid)},
		{"unsigned", signClaims(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid)},
		{"malformed", "a.b.c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, testSecret); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def", "abc.def", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "/", nil) //nolint:errcheck // constant URL
			req.Header.Set("Authorization", tt.header)
			got, ok := bearerToken(req)
			if got != tt.want || ok != tt.ok {
				t.Errorf("bearerToken() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestTicketStore_SingleUse(t *testing.T) {
	ts := newTicketStore()
	ticket := ts.issue()

	if len(ticket) != ticketBytes*2 {
		t.Errorf("ticket length = %d", len(ticket))
	}
	if !ts.consume(ticket) {
		t.Fatal("first consume should succeed")
	}
	if ts.consume(ticket) {
		t.Error("second consume should fail")
	}
	if ts.consume("unknown") {
		t.Error("unknown ticket accepted")
	}
}

func TestTicketStore_Expiry(t *testing.T) {
	ts := newTicketStore()
	ts.tickets["stale"] = time.Now().Add(-time.Second)
	ts.tickets["fresh"] = time.Now().Add(time.Minute)

	ts.clean(time.Now())
	if _, ok := ts.tickets["stale"]; ok {
		t.Error("clean kept an expired ticket")
	}
	if _, ok := ts.tickets["fresh"]; !ok {
		t.Error("clean removed a live ticket")
	}

	ts.tickets["stale"] = time.Now().Add(-time.Second)
	if ts.consume("stale") {
		t.Error("expired ticket accepted")
	}
}

func TestWSTicketEndpoint(t *testing.T) {
	srv := testServer(t, newMockDevices(), testSecret)

	rec := doRequest(srv, http.MethodPost, "/api/v1/auth/ws-ticket", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without token status = %d, want 401", rec.Code)
	}

	rec = doRequest(srv, http.MethodPost, "/api/v1/auth/ws-ticket", "", bearer(t, testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
