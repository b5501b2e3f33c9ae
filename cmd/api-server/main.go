package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/farisdwi28/petneeds/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "petneeds api-server")
		}
		lg.Info("Starting PetNeeds API",
			zap.String("addr", cfg.Addr),
			zap.String("gateway_base_url", cfg.Gateway.BaseURL),
			zap.Bool("events_enabled", cfg.AMQP.URL != ""),
		)
		return appkg.Run(ctx, lg, m, cfg)
	})
}
