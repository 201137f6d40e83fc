package config

import (
	"crypto/rsa"
	"encoding/base64"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"closingflow/internal/utils"
)

const AppName = "closingflow"

type Config struct {
	AppName             string
	AppPort             string
	AppUrl              string
	DBUrl               string
	OpenAIAPIKey        string
	SendGridAPIKey      string
	SendGridFromName    string
	SendGridFromEmail   string
	SendGridSandboxMode bool
	BlobStoreDir        string
	WebhookSecret       string
	RSAPublicKey        *rsa.PublicKey
}

// LoadConfig reads everything from the environment and dies loudly on
// anything missing. A misconfigured instance must not come up.
func LoadConfig() *Config {
	cfg := &Config{
		AppName: AppName,
		AppPort: mustEnv("APP_PORT"),
		AppUrl:  mustEnv("APP_URL"),
		DBUrl:   mustEnv("DB_URL"),

		// Empty key disables the AI collaborators; the pipeline then
		// runs on preconditions and manual confirms only.
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),

		SendGridAPIKey:      mustEnv("SENDGRID_API_KEY"),
		SendGridFromName:    mustEnv("SENDGRID_FROM_NAME"),
		SendGridFromEmail:   mustEnv("SENDGRID_FROM_EMAIL"),
		SendGridSandboxMode: os.Getenv("SENDGRID_SANDBOX_MODE") == "true",

		BlobStoreDir:  mustEnv("BLOB_STORE_DIR"),
		WebhookSecret: mustEnv("INBOUND_WEBHOOK_SECRET"),
	}

	pubB64 := mustEnv("RSA_PUBLIC_KEY_BASE64")
	pubPEM, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil {
		utils.Logger.WithError(err).Fatal("RSA_PUBLIC_KEY_BASE64 is not valid base64")
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		utils.Logger.WithError(err).Fatal("RSA_PUBLIC_KEY_BASE64 does not contain an RSA public key")
	}
	cfg.RSAPublicKey = pubKey

	return cfg
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		utils.Logger.Fatalf("%s env var is missing", key)
	}
	return v
}
