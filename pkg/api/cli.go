package api

import (
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/travigo/departureboard/pkg/config"
	"github.com/travigo/departureboard/pkg/departureboard"
	"github.com/travigo/departureboard/pkg/redis_client"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "web-api",
		Usage: "Provides the departure board web API",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run web api server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Usage: "listen target for the web server, overrides TRAVIGO_API_LISTEN",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.Load()
					if err != nil {
						return err
					}
					if listen := c.String("listen"); listen != "" {
						cfg.API.ListenAddress = listen
					}

					ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
					defer stop()

					core, archive, err := departureboard.Setup(ctx, cfg)
					if err != nil {
						return err
					}
					defer redis_client.Close()

					go core.ReloadEvery(ctx, cfg.GTFS.ReloadInterval, archive.Refresh)

					app := NewApp(core, archive.Refresh)

					go func() {
						<-ctx.Done()
						log.Info().Msg("Shutting down web api")
						if err := app.Shutdown(); err != nil {
							log.Error().Err(err).Msg("Failed to shut down web api")
						}
					}()

					log.Info().Str("listen", cfg.API.ListenAddress).Msg("Starting web api")

					return app.Listen(cfg.API.ListenAddress)
				},
			},
		},
	}
}
