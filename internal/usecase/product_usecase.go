package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// 関連商品の件数
const relatedProductsLimit = 4

type ProductUsecase struct {
	productRepo repo.ProductRepository
}

// DI
func NewProductUsecase(productRepo repo.ProductRepository) *ProductUsecase {
	return &ProductUsecase{productRepo: productRepo}
}

type ProductListOutput struct {
	Items []model.Product `json:"items"`
}

func (u *ProductUsecase) ListProducts(ctx context.Context) (ProductListOutput, error) {
	items, err := u.productRepo.List(ctx)
	if err != nil {
		return ProductListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return ProductListOutput{Items: items}, nil
}

// 詳細＋関連商品（ランダム4件）
type ProductDetailOutput struct {
	Product model.Product   `json:"product"`
	Related []model.Product `json:"related"`
}

func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID int64) (ProductDetailOutput, error) {
	if productID <= 0 {
		return ProductDetailOutput{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if err == repo.ErrNotFound {
		return ProductDetailOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return ProductDetailOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	related, err := u.productRepo.ListRelated(ctx, productID, relatedProductsLimit)
	if err != nil {
		return ProductDetailOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return ProductDetailOutput{Product: p, Related: related}, nil
}

type CreateProductInput struct {
	Name        string
	Description string
	Price       int64
	Image       string
}

func (u *ProductUsecase) CreateProduct(ctx context.Context, in CreateProductInput) (model.Product, error) {
	if strings.TrimSpace(in.Name) == "" {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "name required")
	}
	if len(in.Name) > 255 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "name too long")
	}
	if in.Price < 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "price must be >= 0")
	}
	if strings.TrimSpace(in.Description) == "" {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "description required")
	}
	if strings.TrimSpace(in.Image) == "" {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "image required")
	}

	now := time.Now()
	p, err := u.productRepo.Create(ctx, model.Product{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Image:       strings.TrimSpace(in.Image),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return p, nil
}
