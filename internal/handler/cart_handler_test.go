package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain/cart"
	"storefront/internal/domain/model"
	"storefront/internal/handler"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

// インメモリのリポジトリ実装。DB無しでhandlerからusecaseまで通す。

type fakeProductRepo struct {
	products map[int64]model.Product
}

func (f *fakeProductRepo) List(ctx context.Context) ([]model.Product, error) {
	out := []model.Product{}
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProductRepo) FindByID(ctx context.Context, id int64) (model.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return model.Product{}, repository.ErrNotFound
	}
	return p, nil
}

func (f *fakeProductRepo) ListRelated(ctx context.Context, excludeID int64, limit int) ([]model.Product, error) {
	out := []model.Product{}
	for _, p := range f.products {
		if p.ID == excludeID || len(out) >= limit {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProductRepo) Create(ctx context.Context, p model.Product) (model.Product, error) {
	p.ID = int64(len(f.products) + 1)
	f.products[p.ID] = p
	return p, nil
}

type fakeCartRepo struct {
	carts  map[int64]model.Cart // userID → cart
	nextID int64
}

func (f *fakeCartRepo) GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	if c, ok := f.carts[userID]; ok {
		return c, nil
	}
	f.nextID++
	c := model.Cart{ID: f.nextID, UserID: userID}
	f.carts[userID] = c
	return c, nil
}

func (f *fakeCartRepo) FindByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	c, ok := f.carts[userID]
	if !ok {
		return model.Cart{}, repository.ErrNotFound
	}
	return c, nil
}

type fakeCartItemRepo struct {
	products *fakeProductRepo
	items    map[int64]map[int64]int64 // cartID → productID → qty
	order    map[int64][]int64         // cartID → 追加順
}

func (f *fakeCartItemRepo) bucket(cartID int64) map[int64]int64 {
	if f.items[cartID] == nil {
		f.items[cartID] = map[int64]int64{}
	}
	return f.items[cartID]
}

func (f *fakeCartItemRepo) ListDetailed(ctx context.Context, cartID int64) ([]cart.Item, error) {
	out := []cart.Item{}
	for _, pid := range f.order[cartID] {
		qty, ok := f.items[cartID][pid]
		if !ok {
			continue
		}
		p := f.products.products[pid]
		out = append(out, cart.Item{ID: p.ID, Name: p.Name, Price: p.Price, Image: p.Image, Quantity: qty})
	}
	return out, nil
}

func (f *fakeCartItemRepo) AddQuantity(ctx context.Context, cartID int64, productID int64, delta int64) error {
	b := f.bucket(cartID)
	if _, ok := b[productID]; !ok {
		f.order[cartID] = append(f.order[cartID], productID)
	}
	b[productID] += delta
	return nil
}

func (f *fakeCartItemRepo) SetQuantity(ctx context.Context, cartID int64, productID int64, qty int64) error {
	b := f.bucket(cartID)
	if _, ok := b[productID]; !ok {
		f.order[cartID] = append(f.order[cartID], productID)
	}
	b[productID] = qty
	return nil
}

func (f *fakeCartItemRepo) DeleteByProduct(ctx context.Context, cartID int64, productID int64) error {
	delete(f.bucket(cartID), productID)
	return nil
}

type fakeGuestRepo struct {
	store map[string][]cart.Item
}

func (f *fakeGuestRepo) Load(ctx context.Context, token string) ([]cart.Item, error) {
	items, ok := f.store[token]
	if !ok {
		return []cart.Item{}, nil
	}
	return items, nil
}

func (f *fakeGuestRepo) Save(ctx context.Context, token string, items []cart.Item) error {
	if len(items) == 0 {
		delete(f.store, token)
		return nil
	}
	f.store[token] = items
	return nil
}

func (f *fakeGuestRepo) Delete(ctx context.Context, token string) error {
	delete(f.store, token)
	return nil
}

type fakeTxRepos struct {
	carts     repository.CartRepository
	cartItems repository.CartItemRepository
	products  repository.ProductRepository
}

func (r *fakeTxRepos) Carts() repository.CartRepository         { return r.carts }
func (r *fakeTxRepos) CartItems() repository.CartItemRepository { return r.cartItems }
func (r *fakeTxRepos) Products() repository.ProductRepository   { return r.products }

type fakeTxManager struct {
	repos repository.TxRepos
}

func (m *fakeTxManager) WithinTx(ctx context.Context, fn func(r repository.TxRepos) error) error {
	return fn(m.repos)
}

func newTestServer(t *testing.T) (*echo.Echo, config.Config) {
	t.Helper()

	cfg := config.Config{JWTSecret: "test-secret"}

	products := &fakeProductRepo{products: map[int64]model.Product{
		1: {ID: 1, Name: "Beans", Price: 1000, Image: "beans.png"},
		2: {ID: 2, Name: "Mug", Price: 500, Image: "mug.png"},
	}}
	carts := &fakeCartRepo{carts: map[int64]model.Cart{}}
	cartItems := &fakeCartItemRepo{products: products, items: map[int64]map[int64]int64{}, order: map[int64][]int64{}}
	guest := &fakeGuestRepo{store: map[string][]cart.Item{}}
	tx := &fakeTxManager{repos: &fakeTxRepos{carts: carts, cartItems: cartItems, products: products}}

	uc := usecase.NewCartUsecase(carts, cartItems, products, guest, tx)
	h := handler.NewCartHandler(uc)

	e := echo.New()
	h.RegisterRoutes(e, cfg)
	return e, cfg
}

func issueTestToken(t *testing.T, secret string, userID int64) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	assert.NoError(t, err)
	return tok
}

func doJSON(e *echo.Echo, method, path string, headers map[string]string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, body []byte) cart.View {
	t.Helper()
	var v cart.View
	assert.NoError(t, json.Unmarshal(body, &v))
	return v
}

// Test: トークン無しのゲストGETは空ビュー＋新規トークン発行
func TestGetCart_GuestWithoutTokenMintsOne(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/cart", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.GuestTokenHeader))

	view := decodeView(t, rec.Body.Bytes())
	assert.Empty(t, view.Items)
}

// Test: ゲストの追加→取得→一括変更が同じトークンで通る
func TestGuestCartFlow(t *testing.T) {
	e, _ := newTestServer(t)

	// 追加（数量省略は1）
	rec := doJSON(e, http.MethodPost, "/cart/items", nil, map[string]interface{}{"product_id": 1})
	assert.Equal(t, http.StatusOK, rec.Code)
	token := rec.Header().Get(middleware.GuestTokenHeader)
	assert.NotEmpty(t, token)

	headers := map[string]string{middleware.GuestTokenHeader: token}

	// 同じ商品をもう一度 → 数量2
	rec = doJSON(e, http.MethodPost, "/cart/items", headers, map[string]interface{}{"product_id": 1})
	assert.Equal(t, http.StatusOK, rec.Code)

	view := decodeView(t, rec.Body.Bytes())
	assert.Len(t, view.Items, 1)
	assert.Equal(t, int64(2), view.Items[0].Quantity)
	assert.Equal(t, int64(2000), view.CartTotal)

	// 一括変更：qty5に更新
	rec = doJSON(e, http.MethodPost, "/cart/changes", headers, map[string]interface{}{
		"changes": []map[string]interface{}{
			{"product_id": 1, "type": "update", "quantity": 5},
		},
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	var out usecase.ApplyChangesOutput
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Equal(t, int64(5), out.Cart.Items[0].Quantity)
}

// Test: 認証ユーザーの追加→一括変更→明細削除
func TestUserCartFlow(t *testing.T) {
	e, cfg := newTestServer(t)
	headers := map[string]string{"Authorization": "Bearer " + issueTestToken(t, cfg.JWTSecret, 1)}

	rec := doJSON(e, http.MethodPost, "/cart/items", headers, map[string]interface{}{"product_id": 1, "quantity": 2})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodPost, "/cart/items", headers, map[string]interface{}{"product_id": 2})
	assert.Equal(t, http.StatusOK, rec.Code)

	view := decodeView(t, rec.Body.Bytes())
	assert.Len(t, view.Items, 2)
	assert.Equal(t, int64(2500), view.CartTotal)

	// 一括変更：商品1を5個に、商品2を削除
	rec = doJSON(e, http.MethodPost, "/cart/changes", headers, map[string]interface{}{
		"changes": []map[string]interface{}{
			{"product_id": 1, "type": "update", "quantity": 5},
			{"product_id": 2, "type": "remove"},
		},
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	var out usecase.ApplyChangesOutput
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Len(t, out.Cart.Items, 1)
	assert.Equal(t, int64(5000), out.Cart.CartTotal)

	// 明細削除
	rec = doJSON(e, http.MethodDelete, "/cart/items/1", headers, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	view = decodeView(t, rec.Body.Bytes())
	assert.Empty(t, view.Items)
}

// Test: 存在しない商品を含むバッチは404で、カートは変わらない
func TestApplyChanges_UnknownProductLeavesCartUntouched(t *testing.T) {
	e, cfg := newTestServer(t)
	headers := map[string]string{"Authorization": "Bearer " + issueTestToken(t, cfg.JWTSecret, 1)}

	rec := doJSON(e, http.MethodPost, "/cart/items", headers, map[string]interface{}{"product_id": 1, "quantity": 2})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodPost, "/cart/changes", headers, map[string]interface{}{
		"changes": []map[string]interface{}{
			{"product_id": 1, "type": "update", "quantity": 9},
			{"product_id": 999, "type": "remove"},
		},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// カートは追加直後のまま
	rec = doJSON(e, http.MethodGet, "/cart", headers, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	view := decodeView(t, rec.Body.Bytes())
	assert.Len(t, view.Items, 1)
	assert.Equal(t, int64(2), view.Items[0].Quantity)
}

// Test: 未認証の明細削除は401
func TestRemoveItem_RequiresAuth(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodDelete, "/cart/items/1", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// Test: 壊れたBearerはゲストに落とさず401
func TestIdentity_BrokenBearerRejected(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/cart", map[string]string{"Authorization": "Bearer garbage"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// Test: マージは数量を合算してゲスト側を空にする
func TestMergeGuestCart_Flow(t *testing.T) {
	e, cfg := newTestServer(t)

	// ゲストで商品1を2個
	rec := doJSON(e, http.MethodPost, "/cart/items", nil, map[string]interface{}{"product_id": 1, "quantity": 2})
	assert.Equal(t, http.StatusOK, rec.Code)
	guestToken := rec.Header().Get(middleware.GuestTokenHeader)

	// ユーザーで商品1を1個
	headers := map[string]string{"Authorization": "Bearer " + issueTestToken(t, cfg.JWTSecret, 1)}
	rec = doJSON(e, http.MethodPost, "/cart/items", headers, map[string]interface{}{"product_id": 1})
	assert.Equal(t, http.StatusOK, rec.Code)

	// マージ → 3個
	rec = doJSON(e, http.MethodPost, "/cart/merge", headers, map[string]interface{}{"guest_token": guestToken})
	assert.Equal(t, http.StatusOK, rec.Code)

	view := decodeView(t, rec.Body.Bytes())
	assert.Len(t, view.Items, 1)
	assert.Equal(t, int64(3), view.Items[0].Quantity)

	// ゲスト側は空
	rec = doJSON(e, http.MethodGet, "/cart", map[string]string{middleware.GuestTokenHeader: guestToken}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	guestView := decodeView(t, rec.Body.Bytes())
	assert.Empty(t, guestView.Items)
}
