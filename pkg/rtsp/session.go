package rtsp

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fr3shw3b/raop-control/pkg/dmap"
	"github.com/fr3shw3b/raop-control/pkg/utils"
	"github.com/pion/sdp/v3"
	"github.com/sirupsen/logrus"
	"howett.net/plist"
)

// FramesPerPacket is the number of audio frames carried per RTP packet.
const FramesPerPacket = 352

// authSetupUnencrypted asks the receiver to proceed without encryption.
const authSetupUnencrypted byte = 0x01

// curve25519PubKey is a fixed public key that satisfies receivers
// requiring the auth-setup step. No key exchange is performed with it.
var curve25519PubKey = []byte{
	0x59, 0x02, 0xed, 0xe9, 0x0d, 0x4e, 0xf2, 0xbd,
	0x4c, 0xb6, 0x8a, 0x63, 0x30, 0x03, 0x82, 0x07,
	0xa9, 0x4d, 0xbd, 0x50, 0xd8, 0xaa, 0x46, 0x5b,
	0x5d, 0x8c, 0x01, 0x2a, 0x0c, 0x7e, 0x1d, 0x4e,
}

// AudioMetadata describes what is playing. Empty fields are not sent.
type AudioMetadata struct {
	Title  string
	Album  string
	Artist string
}

type SessionParams struct {
	ExchangeTimeout time.Duration
}

// Session issues control commands for one audio session. All methods
// may be called concurrently; they share one connection and one
// sequence counter.
type Session struct {
	conn      Connection
	context   *Context
	mux       *Multiplexer
	lifecycle *lifecycle
	logger    *logrus.Logger
}

func NewSession(conn Connection, sessionContext *Context, params *SessionParams, metrics *Metrics, logger *logrus.Logger) *Session {
	return &Session{
		conn:    conn,
		context: sessionContext,
		mux: NewMultiplexer(&MultiplexerParams{
			DACPID:       sessionContext.DACPID,
			ActiveRemote: sessionContext.ActiveRemote,
			Timeout:      params.ExchangeTimeout,
		}, metrics, logger),
		lifecycle: newLifecycle(logger),
		logger:    logger,
	}
}

// URI is the default request target for the session.
func (s *Session) URI() string {
	return fmt.Sprintf("rtsp://%s/%d", s.conn.LocalIP(), s.context.SessionID)
}

func (s *Session) Context() *Context {
	return s.context
}

// State reports the negotiation progress, one of the State* constants.
func (s *Session) State() string {
	return s.lifecycle.current()
}

// Info returns the receiver's device information. Receivers that do not
// support it yield an empty map.
func (s *Session) Info(ctx context.Context) (map[string]any, error) {
	resp, err := s.Exchange(ctx, Command{Method: http.MethodGet, URI: "/info", AllowError: true})
	if err != nil {
		return nil, err
	}

	info := map[string]any{}
	if resp.Code != http.StatusOK {
		s.logger.Debug("device does not support /info")
		return info, nil
	}
	if _, err := plist.Unmarshal(resp.Body, &info); err != nil {
		return nil, fmt.Errorf("decode device info: %w", err)
	}
	return info, nil
}

func (s *Session) AuthSetup(ctx context.Context) (*Response, error) {
	body := append([]byte{authSetupUnencrypted}, curve25519PubKey...)
	return s.Exchange(ctx, Command{
		Method:      http.MethodPost,
		URI:         "/auth-setup",
		ContentType: utils.ContentTypeOctetStream,
		Body:        body,
	})
}

func (s *Session) Announce(ctx context.Context) (*Response, error) {
	body, err := s.announcePayload()
	if err != nil {
		return nil, err
	}

	resp, err := s.Exchange(ctx, Command{
		Method:      "ANNOUNCE",
		ContentType: utils.ContentTypeSDP,
		Body:        body,
	})
	if err != nil {
		return nil, err
	}
	s.lifecycle.fire(ctx, eventAnnounce)
	return resp, nil
}

// Setup asks the receiver to set up the audio transport. controlPort and
// timingPort are the local UDP ports receiving receiver initiated traffic.
func (s *Session) Setup(ctx context.Context, controlPort int, timingPort int) (*Response, error) {
	transport := fmt.Sprintf(
		"RTP/AVP/UDP;unicast;interleaved=0-1;mode=record;control_port=%d;timing_port=%d",
		controlPort, timingPort,
	)
	resp, err := s.Exchange(ctx, Command{
		Method:  "SETUP",
		Headers: map[string]string{utils.HeaderTransport: transport},
	})
	if err != nil {
		return nil, err
	}
	s.lifecycle.fire(ctx, eventSetup)
	return resp, nil
}

func (s *Session) Record(ctx context.Context, rtpseq uint16, rtptime uint32) (*Response, error) {
	resp, err := s.Exchange(ctx, Command{
		Method: "RECORD",
		Headers: map[string]string{
			utils.HeaderRange:   "npt=0-",
			utils.HeaderSession: s.context.RTSPSession,
			utils.HeaderRTPInfo: rtpInfo(rtpseq, rtptime),
		},
	})
	if err != nil {
		return nil, err
	}
	s.lifecycle.fire(ctx, eventRecord)
	return resp, nil
}

func (s *Session) SetParameter(ctx context.Context, name string, value string) (*Response, error) {
	return s.Exchange(ctx, Command{
		Method:      "SET_PARAMETER",
		ContentType: utils.ContentTypeParameters,
		Body:        []byte(name + ": " + value),
	})
}

// SetVolume sets the receiver volume in dB and remembers it in the context.
func (s *Session) SetVolume(ctx context.Context, volume float64) (*Response, error) {
	resp, err := s.SetParameter(ctx, "volume", strconv.FormatFloat(volume, 'f', 6, 64))
	if err != nil {
		return nil, err
	}
	s.context.SetVolume(volume)
	return resp, nil
}

func (s *Session) SetMetadata(ctx context.Context, rtpseq uint16, rtptime uint32, metadata AudioMetadata) (*Response, error) {
	return s.Exchange(ctx, Command{
		Method:      "SET_PARAMETER",
		ContentType: utils.ContentTypeDMAPTagged,
		Headers: map[string]string{
			utils.HeaderSession: s.context.RTSPSession,
			utils.HeaderRTPInfo: rtpInfo(rtpseq, rtptime),
		},
		Body: EncodeMetadata(metadata),
	})
}

func (s *Session) Feedback(ctx context.Context, allowError bool) (*Response, error) {
	return s.Exchange(ctx, Command{Method: http.MethodPost, URI: "/feedback", AllowError: allowError})
}

func (s *Session) Teardown(ctx context.Context, allowError bool) (*Response, error) {
	resp, err := s.Exchange(ctx, Command{
		Method:     "TEARDOWN",
		Headers:    map[string]string{utils.HeaderSession: s.context.RTSPSession},
		AllowError: allowError,
	})
	if err != nil {
		return nil, err
	}
	s.lifecycle.fire(ctx, eventTeardown)
	return resp, nil
}

// Exchange sends an arbitrary command through the session multiplexer.
func (s *Session) Exchange(ctx context.Context, cmd Command) (*Response, error) {
	if cmd.URI == "" {
		cmd.URI = s.URI()
	}
	return s.mux.Exchange(ctx, s.conn, cmd)
}

// Pending returns the number of exchanges still waiting for a response.
func (s *Session) Pending() int {
	return s.mux.Pending()
}

func (s *Session) announcePayload() ([]byte, error) {
	description := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "iTunes",
			SessionID:      uint64(s.context.SessionID),
			SessionVersion: 0,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: s.conn.LocalIP(),
		},
		SessionName: "iTunes",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: s.conn.RemoteIP()},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: 0},
					Protos:  []string{"RTP", "AVP"},
					Formats: []string{"96"},
				},
				Attributes: []sdp.Attribute{
					{Key: "rtpmap", Value: "96 AppleLossless"},
					{Key: "fmtp", Value: fmt.Sprintf(
						"96 %d 0 %d 40 10 14 %d 255 0 0 %d",
						FramesPerPacket,
						8*s.context.BytesPerChannel,
						s.context.Channels,
						s.context.SampleRate,
					)},
				},
			},
		},
	}

	body, err := description.Marshal()
	if err != nil {
		return nil, fmt.Errorf("build announce payload: %w", err)
	}
	return body, nil
}

// EncodeMetadata builds the mlit container for the fields present in
// metadata, in title, album, artist order.
func EncodeMetadata(metadata AudioMetadata) []byte {
	var payload []byte
	if metadata.Title != "" {
		payload = append(payload, dmap.StringTag(dmap.TagItemName, metadata.Title)...)
	}
	if metadata.Album != "" {
		payload = append(payload, dmap.StringTag(dmap.TagAlbum, metadata.Album)...)
	}
	if metadata.Artist != "" {
		payload = append(payload, dmap.StringTag(dmap.TagArtist, metadata.Artist)...)
	}
	return dmap.ContainerTag(dmap.TagListingItem, payload)
}

func rtpInfo(rtpseq uint16, rtptime uint32) string {
	return fmt.Sprintf("seq=%d;rtptime=%d", rtpseq, rtptime)
}
