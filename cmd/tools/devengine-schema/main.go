// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"github.com/xcherryio/creditbridge/config"
	"github.com/xcherryio/creditbridge/devengine"
)

const (
	flagEndpoint = "endpoint"
	flagPort     = "port"
	flagUser     = "user"
	flagPassword = "password"
	flagDatabase = "database"
)

func main() {
	app := &cli.App{
		Name:  "dev engine schema tool",
		Usage: "tool for the postgres lock table of the dev engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagEndpoint,
				Aliases: []string{"e"},
				Value:   "127.0.0.1",
				Usage:   "hostname or ip address of postgres",
			},
			&cli.IntFlag{
				Name:    flagPort,
				Aliases: []string{"p"},
				Value:   5432,
				Usage:   "port of postgres",
			},
			&cli.StringFlag{
				Name:    flagUser,
				Aliases: []string{"u"},
				Value:   "postgres",
				Usage:   "user name used for authentication when connecting to postgres",
			},
			&cli.StringFlag{
				Name:    flagPassword,
				Aliases: []string{"pw"},
				Usage:   "password used for authentication when connecting to postgres",
			},
			&cli.StringFlag{
				Name:    flagDatabase,
				Aliases: []string{"db"},
				Value:   "creditbridge_dev",
				Usage:   "name of the postgres database",
			},
		},
		Commands: []*cli.Command{
			{
				Name:    "create-database",
				Aliases: []string{"create"},
				Usage:   "creates the database",
				Action: func(c *cli.Context) error {
					return devengine.CreateDatabase(c.Context, connectConfig(c), c.String(flagDatabase))
				},
			},
			{
				Name:    "install-schema",
				Aliases: []string{"install"},
				Usage:   "install the lock table schema into the database",
				Action: func(c *cli.Context) error {
					cfg := connectConfig(c)
					cfg.DatabaseName = c.String(flagDatabase)
					return devengine.SetupSchema(c.Context, cfg)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func connectConfig(c *cli.Context) config.SQL {
	return config.SQL{
		User:        c.String(flagUser),
		Password:    c.String(flagPassword),
		ConnectAddr: fmt.Sprintf("%v:%v", c.String(flagEndpoint), c.Int(flagPort)),
	}
}
