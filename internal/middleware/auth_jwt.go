package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey     = "user_id"     // int64
	CtxGuestTokenKey = "guest_token" // string
)

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}

// bearerAuth用のJWT検証ミドルウェア。認証必須のルートに使う。
func AuthJWT(cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := userIDFromRequest(c, cfg)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			c.Set(CtxUserIDKey, userID)
			return next(c)
		}
	}
}

var errNoToken = errors.New("no bearer token")

// AuthorizationヘッダからJWTを検証してuser_idを取り出す
func userIDFromRequest(c echo.Context, cfg config.Config) (int64, error) {
	authz := c.Request().Header.Get("Authorization")
	if authz == "" {
		return 0, errNoToken
	}

	// Bearer形式か確認してtokenを抜く
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return 0, errors.New("invalid authorization header")
	}
	rawToken := strings.TrimSpace(parts[1])
	if rawToken == "" {
		return 0, errors.New("empty token")
	}

	token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || token == nil || !token.Valid {
		return 0, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errors.New("invalid claims")
	}

	userID, err := parseUserID(claims["sub"])
	if err != nil || userID <= 0 {
		return 0, errors.New("invalid sub")
	}

	return userID, nil
}

// user_idをint64に変換する
func parseUserID(v interface{}) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, errors.New("invalid sub")
	}
}
