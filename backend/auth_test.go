// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

func TestGetGameAccess(t *testing.T) {
	private := &GameRecord{OwnerID: "Owner@Example.com"}
	public := &GameRecord{OwnerID: "owner@example.com", Public: true}

	tests := []struct {
		name   string
		userId string
		rec    *GameRecord
		want   AccessLevel
	}{
		{"owner", "owner@example.com", private, AccessAdmin},
		{"owner case", " OWNER@example.com ", private, AccessAdmin},
		{"stranger", "other@example.com", private, AccessNone},
		{"anonymous", "", private, AccessNone},
		{"stranger public", "other@example.com", public, AccessRead},
		{"anonymous public", "", public, AccessRead},
	}
	for _, tt := range tests {
		if got := GetGameAccess(tt.userId, tt.rec); got != tt.want {
			t.Errorf("%s: GetGameAccess = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestIsServerAdmin(t *testing.T) {
	if isServerAdmin(Options{}, "") {
		t.Error("anonymous user is admin")
	}
	if !isServerAdmin(Options{}, "anyone@example.com") {
		t.Error("with no admin configured any user should be admin")
	}
	opts := Options{Admin: "Boss@example.com"}
	if !isServerAdmin(opts, "boss@example.com") {
		t.Error("configured admin rejected")
	}
	if isServerAdmin(opts, "anyone@example.com") {
		t.Error("non-admin accepted")
	}
}

func TestMaskEmail(t *testing.T) {
	for in, want := range map[string]string{
		"user@example.com": "u***@example.com",
		"":                 "<empty>",
		"garbage":          "****",
	} {
		if got := maskEmail(in); got != want {
			t.Errorf("maskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

// echoUser writes the authenticated user ID.
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(getUserID(r)))
})

func TestMockAuthMiddleware(t *testing.T) {
	h := mockAuthMiddleware(echoUser)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: mockAuthCookie, Value: " Player@Example.com"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Body.String(); got != "player@example.com" {
		t.Errorf("user = %q", got)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if got := w.Body.String(); got != "" {
		t.Errorf("anonymous user = %q", got)
	}
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	if got := tokenFromRequest(req, "auth"); got != "abc.def.ghi" {
		t.Errorf("bearer token = %q", got)
	}
	req.AddCookie(&http.Cookie{Name: "auth", Value: "cookie.token"})
	if got := tokenFromRequest(req, "auth"); got != "cookie.token" {
		t.Errorf("cookie should win, got %q", got)
	}
	if got := tokenFromRequest(httptest.NewRequest("GET", "/", nil), "auth"); got != "" {
		t.Errorf("empty request token = %q", got)
	}
}

func TestJWKSCacheKeyFunc(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := jwk.Import(&priv.PublicKey)
	if err != nil {
		t.Fatalf("jwk.Import: %v", err)
	}
	pub.Set(jwk.KeyIDKey, "test-key")
	set := jwk.NewSet()
	set.AddKey(pub)
	cache := &jwksCache{keys: set, lastRefresh: time.Now()}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"ES256"}))

	sign := func(kid string, claims jwt.MapClaims) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
		if kid != "" {
			tok.Header["kid"] = kid
		}
		s, err := tok.SignedString(priv)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	exp := time.Now().Add(time.Hour).Unix()

	tok, err := parser.Parse(sign("test-key", jwt.MapClaims{"email": "fan@example.com", "exp": exp}), cache.keyFunc)
	if err != nil || !tok.Valid {
		t.Fatalf("valid token rejected: %v", err)
	}
	if email := tok.Claims.(jwt.MapClaims)["email"]; email != "fan@example.com" {
		t.Errorf("email = %v", email)
	}

	for name, s := range map[string]string{
		"expired":     sign("test-key", jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}),
		"unknown kid": sign("other", jwt.MapClaims{"exp": exp}),
		"no kid":      sign("", jwt.MapClaims{"exp": exp}),
	} {
		if _, err := parser.Parse(s, cache.keyFunc); err == nil {
			t.Errorf("%s: token accepted", name)
		}
	}
}

func TestJWTAuthMiddleware_NoJWKS(t *testing.T) {
	h := jwtAuthMiddleware(Options{AuthCookieName: "tb"}, echoUser)
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: "tb", Value: "not-a-jwt"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "" {
		t.Errorf("got %d %q, want anonymous pass-through", w.Code, w.Body.String())
	}
}
