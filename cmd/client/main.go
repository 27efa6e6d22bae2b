package main

import (
	"log"
	"os"

	"github.com/fr3shw3b/raop-control/internal/clientapp"
	"github.com/fr3shw3b/raop-control/pkg/rtsp"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "client",
		Usage: "Negotiates an audio session with an RTSP audio receiver",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "receiver-host",
				Value: "localhost",
				Usage: "The host on which the receiver is accessible",
			},
			&cli.IntFlag{
				Name:  "receiver-port",
				Value: 7000,
				Usage: "The RTSP port of the receiver",
			},
			&cli.Float64Flag{
				Name:  "volume",
				Usage: "The initial volume, from -30 to 0 (-144 mutes)",
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "The title of what is playing",
			},
			&cli.StringFlag{
				Name:  "album",
				Usage: "The album of what is playing",
			},
			&cli.StringFlag{
				Name:  "artist",
				Usage: "The artist of what is playing",
			},
			&cli.BoolFlag{
				Name:  "skip-auth-setup",
				Usage: "Do not send the auth-setup request",
			},
			&cli.DurationFlag{
				Name:  "duration",
				Usage: "How long to keep the session open, until interrupted when not set",
			},
		},
		Action: func(cCtx *cli.Context) error {
			params := &clientapp.RunParams{
				ReceiverHost: cCtx.String("receiver-host"),
				ReceiverPort: cCtx.Int("receiver-port"),
				Metadata: rtsp.AudioMetadata{
					Title:  cCtx.String("title"),
					Album:  cCtx.String("album"),
					Artist: cCtx.String("artist"),
				},
				SkipAuthSetup: cCtx.Bool("skip-auth-setup"),
				Duration:      cCtx.Duration("duration"),
			}
			if cCtx.IsSet("volume") {
				volume := cCtx.Float64("volume")
				params.Volume = &volume
			}
			return clientapp.Run(params)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
