package server

import (
	"storefront/internal/config"
	"storefront/internal/handler"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// New は全ルートを登録したechoを返す。
func New(
	cfg config.Config,
	authH *handler.AuthHandler,
	productH *handler.ProductHandler,
	cartH *handler.CartHandler,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	authH.RegisterRoutes(e)
	productH.RegisterRoutes(e)
	cartH.RegisterRoutes(e, cfg)

	return e
}

func Start(e *echo.Echo, addr string) error {
	return e.Start(addr)
}
