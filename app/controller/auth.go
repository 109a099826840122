package controller

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/danielnogueira8/whopBetTracker-sub000/app/types"
)

const buyerIDContextKey = "buyer_id"

// TokenVerifier resolves a bearer token to the provider user id it belongs
// to.
type TokenVerifier interface {
	VerifyUserToken(ctx context.Context, token string) (string, error)
}

// RequireBuyerAuth authenticates the calling user against the provider and
// stores the resolved buyer id on the request context. Buyer identity always
// comes from the token, never from the request body.
func RequireBuyerAuth(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			header := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderAuthorization))
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if token == "" || token == header {
				return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "missing bearer token"})
			}

			buyerID, err := verifier.VerifyUserToken(ctx.Request().Context(), token)
			if err != nil || buyerID == "" {
				return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "invalid token"})
			}

			ctx.Set(buyerIDContextKey, buyerID)
			return next(ctx)
		}
	}
}

// BuyerID returns the authenticated buyer id set by RequireBuyerAuth.
func BuyerID(ctx echo.Context) string {
	if id, ok := ctx.Get(buyerIDContextKey).(string); ok {
		return id
	}
	return ""
}
