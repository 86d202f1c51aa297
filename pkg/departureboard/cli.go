package departureboard

import (
	"errors"

	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/travigo/departureboard/pkg/config"
	"github.com/travigo/departureboard/pkg/ctdf"
	"github.com/travigo/departureboard/pkg/redis_client"
)

func withCore(action func(c *cli.Context, core *Core) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		core, _, err := Setup(c.Context, cfg)
		if err != nil {
			return err
		}
		defer redis_client.Close()

		return action(c, core)
	}
}

func printDepartures(departureBoard []*ctdf.DepartureBoard) {
	for _, departure := range departureBoard {
		pretty.Println(departure)
	}
	log.Info().Int("departures", len(departureBoard)).Msg("Departure board")
}

// RegisterCLI gives the commands that query the board from the terminal
func RegisterCLI() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "departures",
			Usage: "List the next departures from a stop",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "stop",
					Usage:    "GTFS stop_id",
					Required: true,
				},
				&cli.DurationFlag{
					Name:  "lookahead",
					Value: DefaultLookahead,
				},
				&cli.BoolFlag{
					Name:  "live",
					Usage: "Apply live predictions to the timetable",
				},
			},
			Action: withCore(func(c *cli.Context, core *Core) error {
				stopID := c.String("stop")
				if _, exists := core.Stop(stopID); !exists {
					return errors.New("could not find stop " + stopID)
				}

				if !c.Bool("live") {
					printDepartures(core.ScheduledDepartures(stopID, c.Duration("lookahead")))
					return nil
				}

				departureBoard, err := core.Departures(c.Context, stopID, c.Duration("lookahead"))
				if err != nil {
					log.Warn().Err(err).Msg("Showing scheduled times only")
				}
				printDepartures(departureBoard)

				return nil
			}),
		},
		{
			Name:  "stops",
			Usage: "Look up stops in the timetable",
			Subcommands: []*cli.Command{
				{
					Name:  "search",
					Usage: "Find stops by name",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:     "query",
							Required: true,
						},
						&cli.IntFlag{
							Name:  "limit",
							Value: 25,
						},
					},
					Action: withCore(func(c *cli.Context, core *Core) error {
						pretty.Println(core.SearchStops(c.String("query"), c.Int("limit")))
						return nil
					}),
				},
			},
		},
		{
			Name:  "routes",
			Usage: "Look up routes in the timetable",
			Subcommands: []*cli.Command{
				{
					Name:  "search",
					Usage: "Find routes by id or name",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:     "query",
							Required: true,
						},
					},
					Action: withCore(func(c *cli.Context, core *Core) error {
						pretty.Println(core.SearchRoutes(c.String("query")))
						return nil
					}),
				},
			},
		},
		{
			Name:  "live",
			Usage: "Query the live feed",
			Subcommands: []*cli.Command{
				{
					Name:  "vehicles",
					Usage: "List live vehicle positions",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name: "trip",
						},
						&cli.StringFlag{
							Name: "route",
						},
					},
					Action: withCore(func(c *cli.Context, core *Core) error {
						vehicles, err := core.LiveVehicles(c.Context, VehicleFilter{
							TripID: c.String("trip"),
							Route:  c.String("route"),
						})
						if err != nil && !errors.Is(err, ErrStale) {
							return err
						}

						pretty.Println(vehicles)
						return nil
					}),
				},
				{
					Name:  "departures",
					Usage: "List the live feed's calls at a stop",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:     "stop",
							Required: true,
						},
						&cli.DurationFlag{
							Name:  "window",
							Usage: "Only calls within this long from now",
						},
						&cli.IntFlag{
							Name:  "count",
							Value: 25,
						},
					},
					Action: withCore(func(c *cli.Context, core *Core) error {
						departureBoard, err := core.LiveDeparturesWithin(c.Context, c.String("stop"), c.Duration("window"), c.Int("count"))
						if err != nil && !errors.Is(err, ErrStale) {
							return err
						}
						if err != nil {
							log.Warn().Err(err).Msg("Live feed is stale")
						}

						printDepartures(departureBoard)
						return nil
					}),
				},
			},
		},
	}
}
