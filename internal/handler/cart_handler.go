package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/config"
	"storefront/internal/domain/cart"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /cartのHTTP
type CartHandler struct {
	uc *usecase.CartUsecase
}

// DI
func NewCartHandler(uc *usecase.CartUsecase) *CartHandler {
	return &CartHandler{uc: uc}
}

type AddCartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type ChangeRequest struct {
	ProductID int64  `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Type      string `json:"type"`
}

type ApplyChangesRequest struct {
	Changes []ChangeRequest `json:"changes"`
}

type MergeCartRequest struct {
	GuestToken string `json:"guest_token"`
}

// /cart配下を登録。取得・追加・一括変更は認証でもゲストでも同じ形。
// 明細削除とマージは認証専用。
func (h *CartHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/cart")
	g.Use(middleware.Identity(cfg))

	g.GET("", h.getCart)
	g.POST("/items", h.addItem)
	g.POST("/changes", h.applyChanges)

	userOnly := e.Group("/cart")
	userOnly.Use(middleware.AuthJWT(cfg))

	userOnly.DELETE("/items/:id", h.removeItem)
	userOnly.POST("/merge", h.merge)
}

// contextからActorを組み立てる。
// Identityミドルウェアがuser_idかguest_tokenのどちらかを必ず入れている。
func actorFromContext(c echo.Context) usecase.Actor {
	if v, ok := c.Get(middleware.CtxUserIDKey).(int64); ok && v > 0 {
		return usecase.Actor{UserID: v}
	}
	if v, ok := c.Get(middleware.CtxGuestTokenKey).(string); ok {
		return usecase.Actor{GuestToken: v}
	}
	return usecase.Actor{}
}

func getUserIDFromContext(c echo.Context) (int64, bool) {
	v, ok := c.Get(middleware.CtxUserIDKey).(int64)
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}

func (h *CartHandler) getCart(c echo.Context) error {
	out, err := h.uc.GetCart(c.Request().Context(), actorFromContext(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) addItem(c echo.Context) error {
	var req AddCartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	// 数量省略は1
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	out, err := h.uc.AddToCart(c.Request().Context(), actorFromContext(c), usecase.AddCartInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) applyChanges(c echo.Context) error {
	var req ApplyChangesRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	changes := make([]cart.PendingChange, 0, len(req.Changes))
	for _, ch := range req.Changes {
		changes = append(changes, cart.PendingChange{
			ProductID: ch.ProductID,
			Type:      cart.ChangeType(ch.Type),
			Quantity:  ch.Quantity,
		})
	}

	out, err := h.uc.ApplyChanges(c.Request().Context(), actorFromContext(c), changes)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) removeItem(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.uc.RemoveItem(c.Request().Context(), userID, productID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) merge(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req MergeCartRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.MergeGuestCart(c.Request().Context(), userID, req.GuestToken)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}
