package usecase

import (
	"context"
	"net/http"

	"storefront/internal/domain/cart"
	repo "storefront/internal/repository"
)

// Actor はカート操作の主体。
// 認証済みならUserID、ゲストならGuestTokenのどちらか片方だけ入る。
// グローバルなセッション状態からは読まず、必ず引数で渡す。
type Actor struct {
	UserID     int64
	GuestToken string
}

func (a Actor) IsUser() bool {
	return a.UserID > 0
}

// CartUsecase は認証カートとゲストカートの両方を同じ契約で扱う。
type CartUsecase struct {
	cartRepo     repo.CartRepository
	cartItemRepo repo.CartItemRepository
	productRepo  repo.ProductRepository
	guestRepo    repo.GuestCartRepository
	tx           repo.TransactionManager
}

func NewCartUsecase(
	cartRepo repo.CartRepository,
	cartItemRepo repo.CartItemRepository,
	productRepo repo.ProductRepository,
	guestRepo repo.GuestCartRepository,
	tx repo.TransactionManager,
) *CartUsecase {
	return &CartUsecase{
		cartRepo:     cartRepo,
		cartItemRepo: cartItemRepo,
		productRepo:  productRepo,
		guestRepo:    guestRepo,
		tx:           tx,
	}
}

type AddCartInput struct {
	ProductID int64
	Quantity  int64
}

// 変更バッチの適用結果
type ApplyChangesOutput struct {
	Success bool      `json:"success"`
	Cart    cart.View `json:"cart"`
}

// GetCart はカートの表示用ビューを返す。カートが無ければ空のビュー。
func (u *CartUsecase) GetCart(ctx context.Context, actor Actor) (cart.View, error) {
	if actor.IsUser() {
		c, err := u.cartRepo.FindByUserID(ctx, actor.UserID)
		if err == repo.ErrNotFound {
			return cart.BuildView(nil), nil
		}
		if err != nil {
			return cart.View{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return u.buildUserView(ctx, c.ID)
	}

	if actor.GuestToken == "" {
		return cart.View{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	items, err := u.guestRepo.Load(ctx, actor.GuestToken)
	if err != nil {
		return cart.View{}, NewHTTPError(http.StatusInternalServerError, "storage error")
	}
	return cart.BuildView(items), nil
}

// AddToCart はカートに追加（同一商品は数量加算）。
// 数量は両パスとも任意で、既定の1はhandler側で入れる。
func (u *CartUsecase) AddToCart(ctx context.Context, actor Actor, in AddCartInput) (cart.View, error) {
	if in.ProductID <= 0 {
		return cart.View{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if in.Quantity < 1 {
		return cart.View{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}

	// 商品チェック（ゲストはここでスナップショットも取る）
	p, err := u.productRepo.FindByID(ctx, in.ProductID)
	if err == repo.ErrNotFound {
		return cart.View{}, NewHTTPError(http.StatusNotFound, "product not found")
	}
	if err != nil {
		return cart.View{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if actor.IsUser() {
		// カートは最初の追加で遅延作成
		c, err := u.cartRepo.GetOrCreateByUserID(ctx, actor.UserID)
		if err != nil {
			return cart.View{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if err := u.cartItemRepo.AddQuantity(ctx, c.ID, in.ProductID, in.Quantity); err != nil {
			return cart.View{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}

		return u.buildUserView(ctx, c.ID)
	}

	if actor.GuestToken == "" {
		return cart.View{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	items, err := u.guestRepo.Load(ctx, actor.GuestToken)
	if err != nil {
		return cart.View{}, NewHTTPError(http.StatusInternalServerError, "storage error")
	}

	found := false
	for i := range items {
		if items[i].ID == in.ProductID {
			items[i].Quantity += in.Quantity
			found = true
			break
		}
	}
	if !found {
		// name/price/imageは追加時点のスナップショット
		items = append(items, cart.Item{
			ID:       p.ID,
			Name:     p.Name,
			Price:    p.Price,
			Image:    p.Image,
			Quantity: in.Quantity,
		})
	}

	if err := u.guestRepo.Save(ctx, actor.GuestToken, items); err != nil {
		return cart.View{}, NewHTTPError(http.StatusInternalServerError, "storage error")
	}
	return cart.BuildView(items), nil
}

// ApplyChanges は未保存の編集バッチを確定させる。
// 認証パスは1トランザクションで全部適用するか、全部捨てるか。
// 失敗時は保存済み状態に触れないので、呼び出し側は同じバッチで再試行できる。
func (u *CartUsecase) ApplyChanges(ctx context.Context, actor Actor, changes []cart.PendingChange) (ApplyChangesOutput, error) {
	if len(changes) == 0 {
		return ApplyChangesOutput{}, NewHTTPError(http.StatusBadRequest, "changes required")
	}
	for _, c := range changes {
		if c.ProductID <= 0 {
			return ApplyChangesOutput{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
		}
		switch c.Type {
		case cart.ChangeTypeUpdate:
			if c.Quantity < 1 {
				return ApplyChangesOutput{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
			}
		case cart.ChangeTypeRemove:
		default:
			return ApplyChangesOutput{}, NewHTTPError(http.StatusBadRequest, "invalid change type")
		}
	}

	if actor.IsUser() {
		return u.applyUserChanges(ctx, actor.UserID, changes)
	}

	if actor.GuestToken == "" {
		return ApplyChangesOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return u.applyGuestChanges(ctx, actor.GuestToken, changes)
}

func (u *CartUsecase) applyUserChanges(ctx context.Context, userID int64, changes []cart.PendingChange) (ApplyChangesOutput, error) {
	// 全changeの商品存在チェックを先にやる。1件でも不正ならバッチごと拒否。
	for _, c := range changes {
		_, err := u.productRepo.FindByID(ctx, c.ProductID)
		if err == repo.ErrNotFound {
			return ApplyChangesOutput{}, NewHTTPError(http.StatusNotFound, "product not found")
		}
		if err != nil {
			return ApplyChangesOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
	}

	collapsed := cart.Collapse(changes)

	var cartID int64
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// カートが無ければここで作る。add側と同じ遅延作成に揃える。
		c, err := r.Carts().GetOrCreateByUserID(ctx, userID)
		if err != nil {
			return err
		}
		cartID = c.ID

		for _, ch := range collapsed {
			switch ch.Type {
			case cart.ChangeTypeUpdate:
				if err := r.CartItems().SetQuantity(ctx, c.ID, ch.ProductID, ch.Quantity); err != nil {
					return err
				}
			case cart.ChangeTypeRemove:
				if err := r.CartItems().DeleteByProduct(ctx, c.ID, ch.ProductID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return ApplyChangesOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	view, err := u.buildUserView(ctx, cartID)
	if err != nil {
		return ApplyChangesOutput{}, err
	}
	return ApplyChangesOutput{Success: true, Cart: view}, nil
}

func (u *CartUsecase) applyGuestChanges(ctx context.Context, token string, changes []cart.PendingChange) (ApplyChangesOutput, error) {
	// ゲストのエントリはローカル由来のスナップショットなので商品存在チェックはしない
	base, err := u.guestRepo.Load(ctx, token)
	if err != nil {
		return ApplyChangesOutput{}, NewHTTPError(http.StatusInternalServerError, "storage error")
	}

	next := cart.Reconcile(base, changes)

	if err := u.guestRepo.Save(ctx, token, next); err != nil {
		return ApplyChangesOutput{}, NewHTTPError(http.StatusInternalServerError, "storage error")
	}
	return ApplyChangesOutput{Success: true, Cart: cart.BuildView(next)}, nil
}

// RemoveItem は1明細の削除。認証ユーザー専用。
// 表示リストが出すIDは商品IDなので、ここも商品IDで受ける。
func (u *CartUsecase) RemoveItem(ctx context.Context, userID int64, productID int64) (cart.View, error) {
	if userID <= 0 {
		return cart.View{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return cart.View{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}

	c, err := u.cartRepo.FindByUserID(ctx, userID)
	if err == repo.ErrNotFound {
		return cart.View{}, NewHTTPError(http.StatusNotFound, "cart not found")
	}
	if err != nil {
		return cart.View{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if err := u.cartItemRepo.DeleteByProduct(ctx, c.ID, productID); err != nil {
		return cart.View{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.buildUserView(ctx, c.ID)
}

// MergeGuestCart はログイン後にゲストカートをユーザーカートへ取り込む。
// 数量は商品IDごとに合算。もう存在しない商品は黙って読み飛ばす。
// 取り込みは1トランザクションで、成功したらゲスト側のキーを消す。
func (u *CartUsecase) MergeGuestCart(ctx context.Context, userID int64, guestToken string) (cart.View, error) {
	if userID <= 0 {
		return cart.View{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if guestToken == "" {
		return cart.View{}, NewHTTPError(http.StatusBadRequest, "guest_token required")
	}

	entries, err := u.guestRepo.Load(ctx, guestToken)
	if err != nil {
		return cart.View{}, NewHTTPError(http.StatusInternalServerError, "storage error")
	}

	if len(entries) == 0 {
		return u.GetCart(ctx, Actor{UserID: userID})
	}

	var cartID int64
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		c, err := r.Carts().GetOrCreateByUserID(ctx, userID)
		if err != nil {
			return err
		}
		cartID = c.ID

		for _, e := range entries {
			if e.Quantity < 1 {
				continue
			}
			_, err := r.Products().FindByID(ctx, e.ID)
			if err == repo.ErrNotFound {
				continue
			}
			if err != nil {
				return err
			}
			if err := r.CartItems().AddQuantity(ctx, c.ID, e.ID, e.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return cart.View{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	// コミットできてからゲスト側を消す
	if err := u.guestRepo.Delete(ctx, guestToken); err != nil {
		return cart.View{}, NewHTTPError(http.StatusInternalServerError, "storage error")
	}

	return u.buildUserView(ctx, cartID)
}

// cartIDの明細からViewを作る
func (u *CartUsecase) buildUserView(ctx context.Context, cartID int64) (cart.View, error) {
	items, err := u.cartItemRepo.ListDetailed(ctx, cartID)
	if err != nil {
		return cart.View{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return cart.BuildView(items), nil
}
