package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/imrishuroy/tailor-orderflow/internal/orders"
)

const secret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	actor := orders.Actor{ID: "u-1", Role: orders.RoleApprover}
	tok, err := GenerateToken(secret, actor, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ValidateToken(secret, tok)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Actor() != actor {
		t.Fatalf("expected %+v, got %+v", actor, claims.Actor())
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	actor := orders.Actor{ID: "u-1", Role: orders.RoleStaff}

	expired, _ := GenerateToken(secret, actor, -time.Minute)
	if _, err := ValidateToken(secret, expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}

	good, _ := GenerateToken(secret, actor, time.Hour)
	if _, err := ValidateToken("other-secret", good); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret accepted: %v", err)
	}

	noRole := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u-2"})
	s, _ := noRole.SignedString([]byte(secret))
	if _, err := ValidateToken(secret, s); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token without role accepted: %v", err)
	}

	if _, err := GenerateToken(secret, orders.Actor{ID: "u-3", Role: "janitor"}, time.Hour); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Middleware(secret), func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, actor.ID+":"+string(actor.Role))
	})

	tok, _ := GenerateToken(secret, orders.Actor{ID: "m-1", Role: orders.RoleManager}, time.Hour)
	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer " + tok, http.StatusOK, "m-1:manager"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic " + tok, http.StatusUnauthorized, ""},
		{"garbage", "Bearer nope", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
			if tc.body != "" && w.Body.String() != tc.body {
				t.Fatalf("unexpected body %q", w.Body.String())
			}
		})
	}
}
