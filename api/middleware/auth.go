package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/dormhousing-backend/api/responses"
	pkgAuth "github.com/angelmondragon/dormhousing-backend/pkg/auth"
	"github.com/angelmondragon/dormhousing-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/dormhousing-backend/pkg/errors"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
)

// Auth verifies the identity provider's bearer token and puts the caller's
// user id and role on the request context. Tokens are never minted here.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token subject"))
				return
			}

			ctx := WithRole(WithUserID(r.Context(), userID.String()), claims.Role)
			ctx = logg.WithActorRole(logg.WithUserID(ctx, userID.String()), claims.Role.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
