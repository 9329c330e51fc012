// Package config loads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port      int
	PublicURL string

	OpenAIKey string
	Model     string
	ChatModel string

	TwilioAccountSid string
	TwilioAuthToken  string

	Voice        string
	Instructions string

	Debug bool
}

// Load reads configuration from the environment. The OpenAI credential is
// required; everything else has a default or is optional until the feature
// needing it is hit.
func Load() (Config, error) {
	cfg := Config{
		Port:             envInt("PORT", 8081),
		PublicURL:        os.Getenv("PUBLIC_URL"),
		OpenAIKey:        envFirst("OPENAI_KEY", "OPENAI_API_KEY"),
		Model:            envDefault("REALTIME_MODEL", "gpt-4o-realtime-preview-2025-06-03"),
		ChatModel:        envDefault("CHAT_MODEL", "gpt-4o-mini"),
		TwilioAccountSid: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		Voice:            envDefault("VOICE", "coral"),
		Instructions:     os.Getenv("INSTRUCTIONS"),
	}

	if cfg.OpenAIKey == "" {
		return cfg, fmt.Errorf("OPENAI_API_KEY environment variable is required")
	}
	return cfg, nil
}

// LoadEnvFile reads KEY=VALUE pairs into the environment without overriding
// variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return sc.Err()
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFirst(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
