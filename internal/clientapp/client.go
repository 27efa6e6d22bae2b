package clientapp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/fr3shw3b/raop-control/pkg/client"
	"github.com/fr3shw3b/raop-control/pkg/config"
	"github.com/fr3shw3b/raop-control/pkg/rtsp"
	"github.com/fr3shw3b/raop-control/pkg/server"
	"github.com/fr3shw3b/raop-control/pkg/sessions"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type RunParams struct {
	ReceiverHost  string
	ReceiverPort  int
	Volume        *float64
	Metadata      rtsp.AudioMetadata
	SkipAuthSetup bool
	// Duration keeps the session open before tearing it down. Zero waits
	// for an interrupt.
	Duration time.Duration
}

func Run(params *RunParams) error {
	err := godotenv.Load(".env.client")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal("Failed to load environment variables: ", err)
	}

	conf, err := config.LoadForClient()
	if err != nil {
		log.Fatal("Failed to load configuration for client: ", err)
	}

	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02T15:04:05.999999999Z07:00"
	customFormatter.FullTimestamp = true
	logger := logrus.New()
	logger.SetFormatter(customFormatter)
	logLevel, err := logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	registry := prometheus.NewRegistry()
	store := sessions.NewInMemoryStore(
		&sessions.InMemoryStoreParams{
			ExpireAfterIdleTime: conf.SessionIdleExpiry,
		},
		logger,
	)

	// Receivers call back into this endpoint with remote control commands
	// for the session registered under their Active-Remote header.
	dacpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", conf.DACPPort),
		ReadTimeout:       1 * time.Second,
		WriteTimeout:      conf.ExchangeTimeout + time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		Handler: server.NewDefaultServer(
			&server.ServerParams{Gatherer: registry},
			store,
			logger,
		),
	}
	go func() {
		logger.Info("remote control endpoint listening on port ", conf.DACPPort)
		if err := dacpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("remote control endpoint stopped: ", err)
		}
	}()
	defer dacpSrv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clientInstance := client.NewDefaultClient(
		&client.ClientParams{
			ReceiverHost:         params.ReceiverHost,
			ReceiverPort:         params.ReceiverPort,
			MaxReconnectAttempts: conf.MaxReconnectAttempts,
			ExchangeTimeout:      conf.ExchangeTimeout,
			ControlPort:          conf.ControlPort,
			TimingPort:           conf.TimingPort,
			Metrics:              rtsp.NewMetrics(registry),
			Store:                store,
		},
		logger,
	)

	err = clientInstance.Connect(ctx)
	if err != nil {
		return err
	}
	defer clientInstance.Close()

	result, err := clientInstance.Stream(ctx, &client.StreamParams{
		Volume:        params.Volume,
		Metadata:      params.Metadata,
		SkipAuthSetup: params.SkipAuthSetup,
	})
	if err != nil {
		return err
	}
	printResult(result)

	if params.Duration > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(params.Duration):
		}
	} else {
		<-ctx.Done()
	}
	return nil
}

func printResult(result client.Result) {
	fmt.Print("Result\n____________\n\n\n")
	fmt.Printf("RTSP Session: %s\n", result.RTSPSession)
	fmt.Printf("State: %s\n", result.State)
	fmt.Printf("Receiver ports: server=%d control=%d timing=%d\n",
		result.ServerPort, result.ControlPort, result.TimingPort)
	fmt.Printf("Volume: %.2f\n", result.Volume)

	keys := make([]string, 0, len(result.Info))
	for key := range result.Info {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("Info %s: %v\n", key, result.Info[key])
	}
}
