package serverapp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fr3shw3b/raop-control/pkg/config"
	"github.com/fr3shw3b/raop-control/pkg/receiver"
	"github.com/sirupsen/logrus"

	"github.com/joho/godotenv"
)

func Run(port int) error {
	err := godotenv.Load(".env.server")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal("Failed to load environment variables: ", err)
	}

	conf, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration for receiver: ", err)
	}

	logger := logrus.New()
	logLevel, err := logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	rcv := receiver.NewReceiver(
		&receiver.ReceiverParams{
			Name:          conf.Name,
			ReorderWindow: conf.ReorderWindow,
			InfoSupported: conf.InfoSupported,
			ServerPort:    conf.ServerPort,
			ControlPort:   conf.ControlPort,
			TimingPort:    conf.TimingPort,
		},
		logger,
	)
	if err := rcv.Listen(fmt.Sprintf(":%d", port)); err != nil {
		return err
	}
	defer rcv.Close()

	log.Printf("Receiver listening on port %d ... \n", port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}
