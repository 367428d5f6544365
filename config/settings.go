package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Settings struct {
	Port   string
	Env    string
	DBPath string

	JWTSecret   string
	TokenTTL    time.Duration
	PublicWSURL string

	GoogleClientID string
	CORSOrigin     string
	MDNSEnabled    bool

	R2Endpoint  string
	R2Bucket    string
	R2AccessKey string
	R2SecretKey string
}

// Load reads the environment, after an optional .env file in the working
// directory, on top of the defaults below.
func Load() (Settings, error) {
	return LoadFrom(".env")
}

func LoadFrom(dotEnvPath string) (Settings, error) {
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return Settings{}, fmt.Errorf("config.godotenv(%s): %w", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		return Settings{}, fmt.Errorf("config.stat(%s): %w", dotEnvPath, err)
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "dev")
	v.SetDefault("DB_PATH", "meeting.db")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("TOKEN_TTL", 2*time.Hour)
	v.SetDefault("PUBLIC_WS_URL", "ws://localhost:8080/ws")
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("CORS_ORIGIN", "http://localhost:5173")
	v.SetDefault("MDNS_ENABLED", false)
	v.SetDefault("R2_ENDPOINT", "")
	v.SetDefault("R2_BUCKET", "")
	v.SetDefault("R2_ACCESS_KEY", "")
	v.SetDefault("R2_SECRET_KEY", "")
	v.AutomaticEnv()

	s := Settings{
		Port:           v.GetString("PORT"),
		Env:            v.GetString("ENV"),
		DBPath:         v.GetString("DB_PATH"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		TokenTTL:       v.GetDuration("TOKEN_TTL"),
		PublicWSURL:    v.GetString("PUBLIC_WS_URL"),
		GoogleClientID: v.GetString("GOOGLE_CLIENT_ID"),
		CORSOrigin:     v.GetString("CORS_ORIGIN"),
		MDNSEnabled:    v.GetBool("MDNS_ENABLED"),
		R2Endpoint:     v.GetString("R2_ENDPOINT"),
		R2Bucket:       v.GetString("R2_BUCKET"),
		R2AccessKey:    v.GetString("R2_ACCESS_KEY"),
		R2SecretKey:    v.GetString("R2_SECRET_KEY"),
	}

	if s.JWTSecret == "" {
		if s.Env == "prod" {
			return Settings{}, fmt.Errorf("config: JWT_SECRET is required when ENV=prod")
		}
		s.JWTSecret = "dev-secret"
	}
	if s.TokenTTL <= 0 {
		return Settings{}, fmt.Errorf("config: TOKEN_TTL must be positive, got %s", s.TokenTTL)
	}
	return s, nil
}

// StorageEnabled reports whether snapshot export to object storage is
// configured.
func (s Settings) StorageEnabled() bool {
	return s.R2Endpoint != "" && s.R2Bucket != "" && s.R2AccessKey != "" && s.R2SecretKey != ""
}
