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
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

const mockAuthCookie = "mock_auth_user"

// jwksRefreshInterval limits how often an unknown kid triggers a refetch.
const jwksRefreshInterval = time.Minute

// jwksCache holds the verification keys published at a JWKS URL.
type jwksCache struct {
	url string

	mu          sync.RWMutex
	keys        jwk.Set
	lastRefresh time.Time
}

func (c *jwksCache) refresh() error {
	if c.url == "" {
		return errors.New("no JWKS URL provided")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	set, err := jwk.Fetch(ctx, c.url)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	c.mu.Lock()
	c.keys = set
	c.lastRefresh = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *jwksCache) find(kid string) (any, error) {
	c.mu.RLock()
	set := c.keys
	c.mu.RUnlock()
	if set == nil {
		return nil, errors.New("JWKS not initialized")
	}
	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("key %s not found in JWKS", kid)
	}
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("failed to materialize key: %w", err)
	}
	return raw, nil
}

// keyFunc resolves the verification key for a token, refetching the set
// once per interval when the kid is unknown.
func (c *jwksCache) keyFunc(token *jwt.Token) (any, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, errors.New("token missing 'kid' header")
	}
	key, err := c.find(kid)
	if err == nil {
		return key, nil
	}
	c.mu.RLock()
	stale := time.Since(c.lastRefresh) > jwksRefreshInterval
	c.mu.RUnlock()
	if !stale {
		return nil, err
	}
	if err := c.refresh(); err != nil {
		log.Printf("[AUTH] Error refreshing JWKS: %v", err)
		return nil, err
	}
	return c.find(kid)
}

// tokenFromRequest reads the JWT from the auth cookie or a bearer
// Authorization header.
func tokenFromRequest(r *http.Request, cookieName string) string {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// jwtAuthMiddleware sets the user ID from a JWT verified against the JWKS
// at opts.AuthJWKSURL. Requests without a valid token proceed anonymously.
func jwtAuthMiddleware(opts Options, next http.Handler) http.Handler {
	cache := &jwksCache{url: opts.AuthJWKSURL}
	if opts.AuthJWKSURL != "" {
		if err := cache.refresh(); err != nil {
			log.Printf("[AUTH] Warning: Failed to fetch JWKS on startup: %v", err)
		}
	} else {
		log.Println("[AUTH] Warning: No AuthJWKSURL provided. JWT validation will fail unless MockAuth is used.")
	}
	cookieName := opts.AuthCookieName
	if cookieName == "" {
		cookieName = defaultAuthCookieName
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{
		"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "EdDSA",
	}))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := tokenFromRequest(r, cookieName)
		if tokenString == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, err := parser.Parse(tokenString, cache.keyFunc)
		if err != nil || !token.Valid {
			if opts.Debug {
				log.Printf("[AUTH] JWT validation failed: %v", err)
			}
			next.ServeHTTP(w, r)
			return
		}
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if email, ok := claims["email"].(string); ok && email != "" {
				ctx := context.WithValue(r.Context(), userIDKey, normalizeEmail(email))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// mockAuthMiddleware takes the user ID from a plain cookie. For local
// development and tests only.
func mockAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(mockAuthCookie); err == nil && cookie.Value != "" {
			ctx := context.WithValue(r.Context(), userIDKey, normalizeEmail(cookie.Value))
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		next.ServeHTTP(w, r)
	})
}
