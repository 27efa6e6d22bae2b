package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/fr3shw3b/raop-control/pkg/rtsp"
	"github.com/fr3shw3b/raop-control/pkg/sessions"
	"github.com/fr3shw3b/raop-control/pkg/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// Receivers accept volumes between -30 (quietest) and 0 (loudest),
	// -144 mutes.
	MinVolume   = -30.0
	MaxVolume   = 0.0
	MutedVolume = -144.0

	volumeStep = 2.0
)

var ErrNotConnected = errors.New("client is not connected")

type Result struct {
	Info        map[string]any
	RTSPSession string
	ServerPort  int
	ControlPort int
	TimingPort  int
	Volume      float64
	State       string
}

type StreamParams struct {
	// Volume is left unchanged on the receiver when nil.
	Volume        *float64
	Metadata      rtsp.AudioMetadata
	SkipAuthSetup bool
}

type ClientParams struct {
	ReceiverHost         string
	ReceiverPort         int
	MaxReconnectAttempts int
	ExchangeTimeout      time.Duration
	// Local UDP ports announced for receiver initiated traffic. Zero
	// opens a listener on an ephemeral port.
	ControlPort int
	TimingPort  int
	// The following are optional.
	Metrics      *rtsp.Metrics
	Store        sessions.SessionStore
	RandomSource utils.RandomSource
}

type clientImpl struct {
	params *ClientParams
	logger *logrus.Logger
	log    *logrus.Entry

	mu           sync.Mutex
	conn         *rtsp.Conn
	session      *rtsp.Session
	listeners    []net.PacketConn
	controlPort  int
	timingPort   int
	activeRemote string

	// volumeMu serialises remote volume changes; it guards unmuteVolume.
	volumeMu     sync.Mutex
	unmuteVolume float64
}

func NewDefaultClient(params *ClientParams, logger *logrus.Logger) Client {
	return &clientImpl{
		params:       params,
		logger:       logger,
		log:          logger.WithField("connection_id", uuid.New().String()),
		unmuteVolume: MaxVolume,
	}
}

func (c *clientImpl) Connect(ctx context.Context) error {
	address := net.JoinHostPort(c.params.ReceiverHost, strconv.Itoa(c.params.ReceiverPort))
	c.log.Info("connecting to receiver at ", address)

	conn, err := rtsp.Dial(ctx, address, &rtsp.DialParams{
		MaxReconnectAttempts: c.params.MaxReconnectAttempts,
		DialTimeout:          c.params.ExchangeTimeout,
	}, c.logger)
	if err != nil {
		return err
	}

	controlPort, err := c.openPort(c.params.ControlPort)
	if err != nil {
		c.release(conn)
		return fmt.Errorf("open control port: %w", err)
	}
	timingPort, err := c.openPort(c.params.TimingPort)
	if err != nil {
		c.release(conn)
		return fmt.Errorf("open timing port: %w", err)
	}

	sessionContext := rtsp.NewContext(c.params.RandomSource)
	session := rtsp.NewSession(conn, sessionContext, &rtsp.SessionParams{
		ExchangeTimeout: c.params.ExchangeTimeout,
	}, c.params.Metrics, c.logger)

	c.mu.Lock()
	c.conn = conn
	c.session = session
	c.controlPort = controlPort
	c.timingPort = timingPort
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"local_ip":     conn.LocalIP(),
		"session_id":   sessionContext.SessionID,
		"control_port": controlPort,
		"timing_port":  timingPort,
	}).Info("connected to receiver")
	return nil
}

func (c *clientImpl) Stream(ctx context.Context, params *StreamParams) (Result, error) {
	session := c.Session()
	if session == nil {
		return Result{}, ErrNotConnected
	}
	sessionContext := session.Context()

	c.mu.Lock()
	controlPort, timingPort := c.controlPort, c.timingPort
	c.mu.Unlock()

	info, err := session.Info(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("info: %w", err)
	}

	if !params.SkipAuthSetup {
		if _, err := session.AuthSetup(ctx); err != nil {
			return Result{}, fmt.Errorf("auth-setup: %w", err)
		}
	}

	if _, err := session.Announce(ctx); err != nil {
		return Result{}, fmt.Errorf("announce: %w", err)
	}

	resp, err := session.Setup(ctx, controlPort, timingPort)
	if err != nil {
		return Result{}, fmt.Errorf("setup: %w", err)
	}
	if err := sessionContext.ApplySetupResponse(resp); err != nil {
		return Result{}, err
	}

	sessionContext.Reset()
	rtpseq, rtptime := sessionContext.RTPSeq, sessionContext.RTPTime()
	if _, err := session.Record(ctx, rtpseq, rtptime); err != nil {
		return Result{}, fmt.Errorf("record: %w", err)
	}

	// Volume and metadata share the connection; responses may come back
	// in either order.
	group, groupCtx := errgroup.WithContext(ctx)
	if params.Volume != nil {
		volume := *params.Volume
		group.Go(func() error {
			_, err := session.SetVolume(groupCtx, volume)
			return err
		})
	}
	group.Go(func() error {
		_, err := session.SetMetadata(groupCtx, rtpseq, rtptime, params.Metadata)
		return err
	})
	if err := group.Wait(); err != nil {
		return Result{}, err
	}

	if err := c.register(sessionContext); err != nil {
		return Result{}, err
	}

	result := Result{
		Info:        info,
		RTSPSession: sessionContext.RTSPSession,
		ServerPort:  sessionContext.ServerPort,
		ControlPort: sessionContext.ControlPort,
		TimingPort:  sessionContext.TimingPort,
		State:       session.State(),
	}
	if volume, ok := sessionContext.Volume(); ok {
		result.Volume = volume
	}
	c.log.WithField("rtsp_session", result.RTSPSession).Info("receiver is recording")
	return result, nil
}

func (c *clientImpl) Session() *rtsp.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *clientImpl) Close() error {
	c.mu.Lock()
	conn, session, activeRemote := c.conn, c.session, c.activeRemote
	c.conn, c.session, c.activeRemote = nil, nil, ""
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	if activeRemote != "" && c.params.Store != nil {
		c.params.Store.Remove(activeRemote)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.exchangeTimeout())
	defer cancel()
	if _, err := session.Teardown(ctx, true); err != nil {
		c.log.Warn("teardown failed: ", err)
	}

	c.log.Info("closing connection to receiver")
	return c.release(conn)
}

func (c *clientImpl) register(sessionContext *rtsp.Context) error {
	if c.params.Store == nil {
		return nil
	}
	activeRemote := strconv.FormatUint(uint64(sessionContext.ActiveRemote), 10)
	if _, err := c.params.Store.Register(activeRemote, sessionContext.DACPID, c.handleRemoteCommand); err != nil {
		return fmt.Errorf("register remote control session: %w", err)
	}

	c.mu.Lock()
	c.activeRemote = activeRemote
	c.mu.Unlock()
	return nil
}

// handleRemoteCommand applies remote control requests the receiver sends
// back to us. Only volume commands affect the control channel.
func (c *clientImpl) handleRemoteCommand(ctx context.Context, command string) error {
	session := c.Session()
	if session == nil {
		return ErrNotConnected
	}

	c.volumeMu.Lock()
	defer c.volumeMu.Unlock()

	current, ok := session.Context().Volume()
	if !ok {
		current = MaxVolume
	}

	target := current
	unmuteVolume := c.unmuteVolume
	switch command {
	case "volumeup":
		target = clampVolume(current + volumeStep)
	case "volumedown":
		target = clampVolume(current - volumeStep)
	case "mutetoggle":
		if current == MutedVolume {
			target = c.unmuteVolume
		} else {
			unmuteVolume = current
			target = MutedVolume
		}
	default:
		c.log.WithField("command", command).Info("remote control command has no effect on the control channel")
		return nil
	}

	if _, err := session.SetVolume(ctx, target); err != nil {
		return err
	}
	c.unmuteVolume = unmuteVolume
	return nil
}

func (c *clientImpl) openPort(port int) (int, error) {
	listener, err := net.ListenPacket("udp", fmt.Sprintf(":%d", port))
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.listeners = append(c.listeners, listener)
	c.mu.Unlock()
	return listener.LocalAddr().(*net.UDPAddr).Port, nil
}

func (c *clientImpl) release(conn *rtsp.Conn) error {
	c.mu.Lock()
	listeners := c.listeners
	c.listeners = nil
	c.mu.Unlock()

	for _, listener := range listeners {
		listener.Close()
	}
	return conn.Close()
}

func (c *clientImpl) exchangeTimeout() time.Duration {
	if c.params.ExchangeTimeout > 0 {
		return c.params.ExchangeTimeout
	}
	return rtsp.DefaultExchangeTimeout
}

func clampVolume(volume float64) float64 {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}
