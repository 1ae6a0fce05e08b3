package serverutils

import (
	"fmt"
	"strings"

	"tarot-room-be/pkg/gateway"
	"tarot-room-be/pkg/identity"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	HeaderGuestID = "X-Guest-Id"

	LocalCallerID        = "caller_id"
	LocalCallerAnonymous = "caller_anonymous"
)

func parseUserID(secret, tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid claims")
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", fmt.Errorf("token missing user_id")
	}
	return userID, nil
}

func bearer(ctx *fiber.Ctx) string {
	authHeader := ctx.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}

// CallerMiddleware accepts a signed-in user or a guest. Browsers cannot set
// headers on a websocket handshake, so the query parameters token and
// guest_id are accepted too.
func CallerMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := bearer(ctx)
		if tokenStr == "" {
			tokenStr = ctx.Query("token")
		}
		if tokenStr != "" {
			userID, err := parseUserID(secret, tokenStr)
			if err != nil {
				return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
			}
			ctx.Locals(LocalCallerID, userID)
			ctx.Locals(LocalCallerAnonymous, false)
			return ctx.Next()
		}

		guestID := ctx.Get(HeaderGuestID)
		if guestID == "" {
			guestID = ctx.Query("guest_id")
		}
		if !identity.IsGuestID(guestID) {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing token or guest id"))
		}
		ctx.Locals(LocalCallerID, guestID)
		ctx.Locals(LocalCallerAnonymous, true)
		return ctx.Next()
	}
}

// Caller returns the identity set by CallerMiddleware.
func Caller(ctx *fiber.Ctx) gateway.Actor {
	id, _ := ctx.Locals(LocalCallerID).(string)
	anonymous, _ := ctx.Locals(LocalCallerAnonymous).(bool)
	return gateway.Actor{ID: id, Anonymous: anonymous}
}
