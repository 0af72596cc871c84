package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"game-activation-ledger/internal/domain/model"
	"game-activation-ledger/internal/infra/api"
	"game-activation-ledger/internal/infra/logging"
)

var errMissingToken = errors.New("missing token")

// Claims is what the identity service signs: the subject is the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthManager verifies HS256 bearer tokens. Authentication itself belongs to the
// identity service; this only turns a signed token into a Principal.
type AuthManager struct {
	secret []byte
	issuer string
}

func NewAuthManager(secret, issuer string) *AuthManager {
	return &AuthManager{secret: []byte(secret), issuer: issuer}
}

// Mint signs a token for userID. Used by tooling and tests.
func (a *AuthManager) Mint(userID string, role model.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (model.Principal, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return model.Principal{}, errMissingToken
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthManager) parse(tok string) (model.Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !tkn.Valid {
		return model.Principal{}, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return model.Principal{}, errors.New("token has no subject")
	}
	role := model.RoleUser
	if model.Role(claims.Role) == model.RoleAdmin {
		role = model.RoleAdmin
	}
	return model.Principal{UserID: claims.Subject, Role: role}, nil
}

type principalKey struct{}

func principalFrom(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(model.Principal)
	return p, ok
}

// authenticate rejects requests without a valid token and stores the principal
// plus its ids on the request context for logging.
func (a *AuthManager) authenticate(logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := a.ParseFromRequest(r)
			if err != nil {
				logging.With(r.Context(), logger).Debug().Err(err).Msg("unauthenticated request")
				api.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), principalKey{}, p)
			ctx = logging.WithUserID(ctx, p.UserID)
			if p.IsAdmin() {
				ctx = logging.WithActorID(ctx, p.UserID)
			}
			api.Annotate(w, ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := principalFrom(r.Context()); !ok || !p.IsAdmin() {
			api.WriteError(w, http.StatusForbidden, "FORBIDDEN", "administrator role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
