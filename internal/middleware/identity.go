package middleware

import (
	"net/http"

	"storefront/internal/config"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ゲストトークンを運ぶヘッダ
const GuestTokenHeader = "X-Guest-Token"

// Identity は認証・ゲスト両対応のルート用。
// BearerがあればJWTとして検証してuser_idを入れる。壊れたBearerは401（ゲストに落とさない）。
// Bearerが無ければゲスト扱い。トークンが無ければ発行してレスポンスヘッダで返す。
func Identity(cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" {
				userID, err := userIDFromRequest(c, cfg)
				if err != nil {
					return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
				}
				c.Set(CtxUserIDKey, userID)
				return next(c)
			}

			token := c.Request().Header.Get(GuestTokenHeader)
			if token == "" {
				token = uuid.NewString()
			}

			// クライアントが保存できるように常に返す
			c.Response().Header().Set(GuestTokenHeader, token)
			c.Set(CtxGuestTokenKey, token)
			return next(c)
		}
	}
}
