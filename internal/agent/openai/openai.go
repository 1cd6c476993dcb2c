package openai

import (
	"log/slog"
	"time"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"

	"agilemeter.shikanime.studio/internal/config"
)

func NewClientForConfig(cfg *config.Config) *sdk.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.GetOpenAIAPIKey()),
		option.WithMaxRetries(3),
	}
	if u := cfg.GetOpenAIBaseURL(); u != "" {
		opts = append(opts, option.WithBaseURL(u))
	}
	c := sdk.NewClient(opts...)
	return &c
}

// NewOracleLimiterForConfig spreads oracle requests evenly over a minute.
func NewOracleLimiterForConfig(cfg *config.Config) *rate.Limiter {
	rpm := cfg.GetOracleRequestsPerMinute()
	burst := max(1, rpm/12)
	l := rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), burst)
	slog.Debug("Created oracle rate limiter", "rpm", rpm, "burst", burst)
	return l
}
