package config

import (
	"os"
	"strconv"
	"time"
)

type ClientConfig struct {
	MaxReconnectAttempts int
	ExchangeTimeout      time.Duration
	DACPPort             int
	ControlPort          int
	TimingPort           int
	SessionIdleExpiry    int
	LogLevel             string
}

func LoadForClient() (*ClientConfig, error) {
	maxReconnectAttempts, err := intFromEnv("MAX_RECONNECTION_ATTEMPTS", "5")
	if err != nil {
		return nil, err
	}

	timeoutSeconds, err := strconv.ParseFloat(stringFromEnv("EXCHANGE_TIMEOUT_SECONDS", "4"), 64)
	if err != nil {
		return nil, err
	}

	dacpPort, err := intFromEnv("DACP_PORT", "3689")
	if err != nil {
		return nil, err
	}

	// Zero lets the operating system pick the local UDP port.
	controlPort, err := intFromEnv("CONTROL_PORT", "0")
	if err != nil {
		return nil, err
	}

	timingPort, err := intFromEnv("TIMING_PORT", "0")
	if err != nil {
		return nil, err
	}

	sessionIdleExpiry, err := intFromEnv("SESSION_IDLE_EXPIRY", "0")
	if err != nil {
		return nil, err
	}

	return &ClientConfig{
		MaxReconnectAttempts: maxReconnectAttempts,
		ExchangeTimeout:      time.Duration(timeoutSeconds * float64(time.Second)),
		DACPPort:             dacpPort,
		ControlPort:          controlPort,
		TimingPort:           timingPort,
		SessionIdleExpiry:    sessionIdleExpiry,
		LogLevel:             stringFromEnv("LOG_LEVEL", "info"),
	}, nil
}

func stringFromEnv(key string, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	return value
}

func intFromEnv(key string, fallback string) (int, error) {
	return strconv.Atoi(stringFromEnv(key, fallback))
}

func boolFromEnv(key string, fallback string) (bool, error) {
	return strconv.ParseBool(stringFromEnv(key, fallback))
}
