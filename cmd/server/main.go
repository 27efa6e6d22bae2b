package main

import (
	"log"
	"os"

	"github.com/fr3shw3b/raop-control/internal/serverapp"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "server",
		Usage: "A development RTSP audio receiver",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Value: 7000,
				Usage: "The port to accept control connections on",
			},
		},
		Action: func(cCtx *cli.Context) error {
			port := cCtx.Int("port")
			return serverapp.Run(port)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
