// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"github.com/xcherryio/creditbridge/cmd/server/bootstrap"
)

func main() {
	app := &cli.App{
		Name:  "credit bridge server",
		Usage: "start the credit check handoff bridge",
		Action: func(c *cli.Context) error {
			bootstrap.StartCreditBridgeServerCli(c)
			return nil
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  bootstrap.FlagConfig,
				Value: "./config/development.yaml",
				Usage: "the config to start the server",
			},
			&cli.StringFlag{
				Name: bootstrap.FlagService,
				Value: strings.Join([]string{
					bootstrap.ApiServiceName,
					bootstrap.ExternalTaskServiceName,
					bootstrap.ConsumerServiceName,
				}, ","),
				Usage: "the services to start, separated by comma, " +
					"devengine runs the reference task source in process",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
