// Package config loads application configuration from environment variables
// into tagged structs.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11: optional
// .env files are loaded first, then env.Parse fills the struct. Each config
// type is parsed once per process and served from an in-memory cache on
// subsequent calls, so subsystems can call Load independently without
// duplicating work.
//
// Usage:
//
//	type PublisherConfig struct {
//		AppID     string `env:"FACEBOOK_APP_ID,required"`
//		AppSecret string `env:"FACEBOOK_APP_SECRET,required"`
//	}
//
//	var cfg PublisherConfig
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
//
// ResetCache clears the cache between tests.
package config
