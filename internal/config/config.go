package config

import (
	"fmt"
	"os"
	"strconv"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	JWTSecret string // JWT署名シークレット

	RedisAddr     string // ゲストカート保存先（localhost:6379）
	RedisPassword string
	RedisDB       int
}

// Loadは環境変数から読む。DB接続はinfra/dbが直接envを見る。
func Load() (Config, error) {
	cfg := Config{
		Port: getenv("PORT", "8080"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("REDIS_DB must be number: %w", err)
		}
		cfg.RedisDB = n
	}

	// 必須チェック
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
