package main

import (
	"time"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/handler"
	"storefront/internal/infra/db"
	infraRedis "storefront/internal/infra/redis"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/server"
	"storefront/internal/usecase"

	"github.com/joho/godotenv"
)

// ゲストカートの保持期間
const guestCartTTL = 30 * 24 * time.Hour

func main() {
	// .envは無くてもいい
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// DB接続
	gormDB, err := db.Connect()
	if err != nil {
		panic(err)
	}
	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.Product{},
		&model.Cart{},
		&model.CartItem{},
	); err != nil {
		panic(err)
	}

	// Redis接続（ゲストカート用）
	rdb, err := infraRedis.Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		panic(err)
	}

	// Repository（GORM/Redis実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	cartItemRepo := infraRepo.NewCartItemGormRepository(gormDB)
	guestRepo := infraRepo.NewGuestCartRedisRepository(rdb, guestCartTTL)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	// Usecase生成
	authUC := usecase.NewAuthUsecase(userRepo, cfg.JWTSecret)
	productUC := usecase.NewProductUsecase(productRepo)
	cartUC := usecase.NewCartUsecase(cartRepo, cartItemRepo, productRepo, guestRepo, txManager)

	// Handler生成
	authH := handler.NewAuthHandler(authUC)
	productH := handler.NewProductHandler(productUC)
	cartH := handler.NewCartHandler(cartUC)

	// Server起動
	e := server.New(cfg, authH, productH, cartH)
	if err := server.Start(e, ":"+cfg.Port); err != nil {
		panic(err)
	}
}
