package rtsp

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/fr3shw3b/raop-control/pkg/timing"
	"github.com/fr3shw3b/raop-control/pkg/utils"
)

const (
	DefaultSampleRate      = 44100
	DefaultChannels        = 2
	DefaultBytesPerChannel = 2

	// baseLatency is added to the sample rate to get the playout latency
	// in samples.
	baseLatency = 22050
)

// Context holds the audio parameters, timestamps and identifiers of one
// audio session.
//
// Codec parameters may only change between calls to Reset. HeadTS is
// advanced by the data plane as frames are sent.
type Context struct {
	SampleRate      uint64
	Channels        int
	BytesPerChannel int
	Latency         uint64

	RTPSeq  uint16
	StartTS uint64
	HeadTS  uint64

	ServerPort  int
	ControlPort int
	TimingPort  int
	RTSPSession string

	SessionID    uint32
	DACPID       string
	ActiveRemote uint32

	volumeMu sync.Mutex
	volume   *float64

	// Clock returns the current time as an NTP timestamp.
	Clock func() uint64

	rnd utils.RandomSource
}

// NewContext creates a context with default codec parameters. The
// session identifiers are drawn from rnd once and never change.
func NewContext(rnd utils.RandomSource) *Context {
	if rnd == nil {
		rnd = utils.DefaultRandomSource()
	}
	return &Context{
		SampleRate:      DefaultSampleRate,
		Channels:        DefaultChannels,
		BytesPerChannel: DefaultBytesPerChannel,
		Latency:         baseLatency + DefaultSampleRate,
		SessionID:       rnd.Uint32(),
		DACPID:          fmt.Sprintf("%X", rnd.Uint64()),
		ActiveRemote:    rnd.Uint32(),
		Clock:           timing.NtpNow,
		rnd:             rnd,
	}
}

// Reset restarts the sample clock. It must be called at stream start and
// whenever SampleRate changes.
func (c *Context) Reset() {
	c.RTPSeq = utils.Uint16Random(c.rnd)
	c.StartTS = timing.NtpToTs(c.Clock(), c.SampleRate)
	c.HeadTS = c.StartTS
	c.Latency = baseLatency + c.SampleRate
}

// RTPTime is the current RTP timestamp including latency, truncated to
// the 32 bits carried on the wire.
func (c *Context) RTPTime() uint32 {
	return uint32(c.HeadTS - (c.StartTS - c.Latency))
}

// Position is the stream position in seconds. Latency is not included.
func (c *Context) Position() float64 {
	return timing.TsToMs(c.HeadTS-c.StartTS, c.SampleRate) / 1000.0
}

// Volume returns the last volume the receiver accepted.
func (c *Context) Volume() (float64, bool) {
	c.volumeMu.Lock()
	defer c.volumeMu.Unlock()
	if c.volume == nil {
		return 0, false
	}
	return *c.volume, true
}

// SetVolume records the last requested volume.
func (c *Context) SetVolume(volume float64) {
	c.volumeMu.Lock()
	defer c.volumeMu.Unlock()
	c.volume = &volume
}

// ApplySetupResponse stores the session token and the receiver ports
// announced in a SETUP response.
func (c *Context) ApplySetupResponse(resp *Response) error {
	if session, ok := resp.Header(utils.HeaderSession); ok {
		c.RTSPSession = strings.TrimSpace(strings.SplitN(session, ";", 2)[0])
	}

	transport, ok := resp.Header(utils.HeaderTransport)
	if !ok {
		return fmt.Errorf("setup response has no %s header", utils.HeaderTransport)
	}

	for _, field := range strings.Split(transport, ";") {
		key, value, found := strings.Cut(strings.TrimSpace(field), "=")
		if !found {
			continue
		}

		var target *int
		switch key {
		case "server_port":
			target = &c.ServerPort
		case "control_port":
			target = &c.ControlPort
		case "timing_port":
			target = &c.TimingPort
		default:
			continue
		}

		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s in transport %q: %w", key, transport, err)
		}
		*target = port
	}
	return nil
}
