package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/MikeMC777/healthnet-pharmacy/internal/auth"
	"github.com/MikeMC777/healthnet-pharmacy/internal/config"
	"github.com/MikeMC777/healthnet-pharmacy/internal/migrations"
)

func main() {
	app := &cli.App{
		Name:  "pharmacy-api",
		Usage: "HealthNet e-pharmacy backend",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the gRPC health endpoint",
				Action: func(c *cli.Context) error { return serve(c.Context) },
			},
			{
				Name:  "migrate",
				Usage: "apply or roll back the database schema",
				Subcommands: []*cli.Command{
					{
						Name: "up",
						Action: func(c *cli.Context) error {
							cfg, err := loadConfig()
							if err != nil {
								return err
							}
							return migrations.Up(cfg.PostgresDSN, log.StandardLogger())
						},
					},
					{
						Name:  "down",
						Flags: []cli.Flag{&cli.IntFlag{Name: "steps", Value: 1, Usage: "migrations to roll back, 0 for all"}},
						Action: func(c *cli.Context) error {
							cfg, err := loadConfig()
							if err != nil {
								return err
							}
							return migrations.Down(cfg.PostgresDSN, c.Int("steps"), log.StandardLogger())
						},
					},
				},
			},
			{
				Name:  "seed-areas",
				Usage: "upsert delivery areas from a YAML file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Value: "configs/delivery_areas.yaml", Usage: "seed file"},
				},
				Action: func(c *cli.Context) error { return seedAreas(c.Context, c.String("file")) },
			},
			{
				Name:  "issue-token",
				Usage: "sign a development JWT with JWT_SECRET",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Required: true},
					&cli.StringFlag{Name: "email"},
					&cli.StringFlag{Name: "role", Value: string(auth.RoleCustomer)},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					if cfg.JWTSecret == "" {
						return errors.New("JWT_SECRET is required")
					}
					role := auth.Role(c.String("role"))
					if role != auth.RoleCustomer && role != auth.RoleAdmin {
						return errors.Errorf("unknown role %q", role)
					}
					tok, err := auth.IssueToken(cfg.JWTSecret, auth.Actor{
						UserID: c.String("user"), Email: c.String("email"), Role: role,
					}, c.Duration("ttl"))
					if err != nil {
						return err
					}
					fmt.Println(tok)
					return nil
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("pharmacy-api")
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	cfg.SetupLogging()
	return cfg, nil
}
