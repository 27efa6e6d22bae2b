package config

// Config configures the development receiver.
type Config struct {
	Name          string
	ReorderWindow int
	InfoSupported bool
	ServerPort    int
	ControlPort   int
	TimingPort    int
	LogLevel      string
}

func Load() (*Config, error) {
	reorderWindow, err := intFromEnv("RECEIVER_REORDER_WINDOW", "1")
	if err != nil {
		return nil, err
	}

	infoSupported, err := boolFromEnv("RECEIVER_INFO_SUPPORTED", "true")
	if err != nil {
		return nil, err
	}

	serverPort, err := intFromEnv("RECEIVER_SERVER_PORT", "6000")
	if err != nil {
		return nil, err
	}

	controlPort, err := intFromEnv("RECEIVER_CONTROL_PORT", "6001")
	if err != nil {
		return nil, err
	}

	timingPort, err := intFromEnv("RECEIVER_TIMING_PORT", "6002")
	if err != nil {
		return nil, err
	}

	return &Config{
		Name:          stringFromEnv("RECEIVER_NAME", "Development Receiver"),
		ReorderWindow: reorderWindow,
		InfoSupported: infoSupported,
		ServerPort:    serverPort,
		ControlPort:   controlPort,
		TimingPort:    timingPort,
		LogLevel:      stringFromEnv("LOG_LEVEL", "info"),
	}, nil
}
