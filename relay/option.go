package relay

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/voxwire/voxwire-go/tool"
)

const (
	ApiKeyEnvVarNameShort = "OPENAI_KEY"
	ApiKeyEnvVarNameLong  = "OPENAI_API_KEY"
)

type relayConfig struct {
	model            string
	modelURL         string
	apiKey           string
	instructions     string
	voice            string
	temperature      float64
	speed            float64
	handshakeTimeout time.Duration
	toolTimeout      time.Duration
	logger           *slog.Logger
	registry         *tool.Registry
}

func (c *relayConfig) validate() error {
	if c.apiKey == "" {
		return fmt.Errorf("missing api key")
	}
	return nil
}

type Option func(*relayConfig)

func WithRegistry(r *tool.Registry) Option {
	return func(c *relayConfig) {
		c.registry = r
	}
}

func WithVoice(voice string) Option {
	return func(c *relayConfig) {
		c.voice = voice
	}
}

func WithSpeed(speed float64) Option {
	return func(c *relayConfig) {
		c.speed = speed
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *relayConfig) {
		c.logger = logger
	}
}

func WithTemperature(temperature float64) Option {
	return func(c *relayConfig) {
		c.temperature = temperature
	}
}

func WithModel(model string) Option {
	return func(c *relayConfig) {
		c.model = model
	}
}

// WithModelURL overrides the realtime endpoint. Used by tests to point the
// relay at an in-process server.
func WithModelURL(url string) Option {
	return func(c *relayConfig) {
		c.modelURL = url
	}
}

func WithKey(apiKey string) Option {
	return func(c *relayConfig) {
		c.apiKey = apiKey
	}
}

func WithEnvKey(vars ...string) Option {
	return func(c *relayConfig) {
		for _, envVarName := range vars {
			if k := os.Getenv(envVarName); k != "" {
				c.apiKey = k
				return
			}
		}
	}
}

func WithInstructions(instructions string) Option {
	return func(c *relayConfig) {
		c.instructions = instructions
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *relayConfig) {
		c.handshakeTimeout = d
	}
}

// WithToolTimeout bounds a single function-call handler. The dispatcher
// itself imposes no timeout; this is the model link's policy.
func WithToolTimeout(d time.Duration) Option {
	return func(c *relayConfig) {
		c.toolTimeout = d
	}
}

func WithOptions(opts ...Option) Option {
	return func(c *relayConfig) {
		for _, opt := range opts {
			opt(c)
		}
	}
}

func withDefaults() Option {
	return WithOptions(
		WithLogger(slog.New(slog.DiscardHandler)),
		WithVoice("coral"),
		WithInstructions("You are a helpful voice agent. Keep answers short, this is a phone call."),
		WithTemperature(0.8),
		WithSpeed(1.1),
		WithModel("gpt-4o-realtime-preview-2025-06-03"),
		WithModelURL("wss://api.openai.com/v1/realtime"),
		WithHandshakeTimeout(10*time.Second),
		WithToolTimeout(30*time.Second),
		WithRegistry(tool.NewRegistry()),
		WithEnvKey(ApiKeyEnvVarNameShort, ApiKeyEnvVarNameLong),
	)
}
