package rtsp

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fr3shw3b/raop-control/pkg/dmap"
	"github.com/fr3shw3b/raop-control/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"
)

func createTestSession(conn Connection) *Session {
	sessionContext := NewContext(utils.NewRandomSource(3))
	sessionContext.Clock = fixedClock(uint64(3_900_000_000) << 32)
	sessionContext.Reset()
	return NewSession(conn, sessionContext, &SessionParams{ExchangeTimeout: time.Second}, nil, createLogger())
}

func Test_session_uri_uses_local_ip_and_session_id(t *testing.T) {
	session := createTestSession(newEchoConn())

	assert.Equal(t, fmt.Sprintf("rtsp://10.0.0.1/%d", session.Context().SessionID), session.URI())
}

func Test_info_returns_empty_result_when_unsupported(t *testing.T) {
	conn := newEchoConn()
	conn.statuses["/info"] = 404
	session := createTestSession(conn)

	info, err := session.Info(context.Background())

	require.NoError(t, err)
	assert.Empty(t, info)
	assert.Equal(t, "GET", conn.last().Method)
}

func Test_info_decodes_plist(t *testing.T) {
	conn := newEchoConn()
	body, err := plist.Marshal(map[string]any{"name": "Kitchen", "statusFlags": 4}, plist.BinaryFormat)
	require.NoError(t, err)
	conn.bodies["/info"] = body
	session := createTestSession(conn)

	info, err := session.Info(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "Kitchen", info["name"])
}

func Test_feedback_error_status(t *testing.T) {
	conn := newEchoConn()
	conn.statuses["/feedback"] = 404
	session := createTestSession(conn)

	_, err := session.Feedback(context.Background(), false)
	require.ErrorIs(t, err, ErrStatus)

	resp, err := session.Feedback(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.Code)
	assert.Equal(t, "POST", conn.last().Method)
}

func Test_auth_setup_body(t *testing.T) {
	conn := newEchoConn()
	session := createTestSession(conn)

	_, err := session.AuthSetup(context.Background())
	require.NoError(t, err)

	req := conn.last()
	assert.Equal(t, "/auth-setup", req.URI)
	assert.Equal(t, "application/octet-stream", req.ContentType)
	require.Len(t, req.Body, 33)
	assert.Equal(t, byte(0x01), req.Body[0])
	assert.Equal(t, curve25519PubKey, req.Body[1:])
}

func Test_announce_sends_session_description(t *testing.T) {
	conn := newEchoConn()
	session := createTestSession(conn)

	_, err := session.Announce(context.Background())
	require.NoError(t, err)

	expected := fmt.Sprintf("v=0\r\n"+
		"o=iTunes %d 0 IN IP4 10.0.0.1\r\n"+
		"s=iTunes\r\n"+
		"c=IN IP4 10.0.0.2\r\n"+
		"t=0 0\r\n"+
		"m=audio 0 RTP/AVP 96\r\n"+
		"a=rtpmap:96 AppleLossless\r\n"+
		"a=fmtp:96 352 0 16 40 10 14 2 255 0 0 44100\r\n", session.Context().SessionID)

	req := conn.last()
	assert.Equal(t, "ANNOUNCE", req.Method)
	assert.Equal(t, session.URI(), req.URI)
	assert.Equal(t, "application/sdp", req.ContentType)
	assert.Equal(t, expected, string(req.Body))
	assert.Equal(t, StateAnnounced, session.State())
}

func Test_setup_and_record_headers(t *testing.T) {
	conn := newEchoConn()
	session := createTestSession(conn)
	session.Context().RTSPSession = "1"

	_, err := session.Announce(context.Background())
	require.NoError(t, err)
	_, err = session.Setup(context.Background(), 6001, 6002)
	require.NoError(t, err)
	assert.Equal(t,
		"RTP/AVP/UDP;unicast;interleaved=0-1;mode=record;control_port=6001;timing_port=6002",
		conn.last().Headers["Transport"],
	)
	assert.Equal(t, StateReady, session.State())

	_, err = session.Record(context.Background(), 12, 66150)
	require.NoError(t, err)
	req := conn.last()
	assert.Equal(t, "RECORD", req.Method)
	assert.Equal(t, "npt=0-", req.Headers["Range"])
	assert.Equal(t, "1", req.Headers["Session"])
	assert.Equal(t, "seq=12;rtptime=66150", req.Headers["RTP-Info"])
	assert.Equal(t, StateRecording, session.State())
}

func Test_set_parameter_and_volume(t *testing.T) {
	conn := newEchoConn()
	session := createTestSession(conn)

	_, err := session.SetParameter(context.Background(), "progress", "1/2/3")
	require.NoError(t, err)
	assert.Equal(t, "progress: 1/2/3", string(conn.last().Body))
	assert.Equal(t, "text/parameters", conn.last().ContentType)

	_, err = session.SetVolume(context.Background(), -20)
	require.NoError(t, err)
	assert.Equal(t, "volume: -20.000000", string(conn.last().Body))
	volume, ok := session.Context().Volume()
	require.True(t, ok)
	assert.Equal(t, -20.0, volume)
}

func Test_failed_volume_is_not_remembered(t *testing.T) {
	conn := newEchoConn()
	session := createTestSession(conn)
	conn.statuses[session.URI()] = 500

	_, err := session.SetVolume(context.Background(), -10)

	require.ErrorIs(t, err, ErrStatus)
	_, ok := session.Context().Volume()
	assert.False(t, ok)
}

func Test_set_metadata_with_only_title(t *testing.T) {
	conn := newEchoConn()
	session := createTestSession(conn)
	session.Context().RTSPSession = "1"

	_, err := session.SetMetadata(context.Background(), 3, 4, AudioMetadata{Title: "Song"})
	require.NoError(t, err)

	req := conn.last()
	assert.Equal(t, "application/x-dmap-tagged", req.ContentType)
	assert.Equal(t, "seq=3;rtptime=4", req.Headers["RTP-Info"])
	assert.Equal(t, "1", req.Headers["Session"])
	assert.Equal(t, dmap.ContainerTag("mlit", dmap.StringTag("minm", "Song")), req.Body)
}

func Test_encode_metadata(t *testing.T) {
	assert.Equal(t, []byte{'m', 'l', 'i', 't', 0, 0, 0, 0}, EncodeMetadata(AudioMetadata{}))

	full := EncodeMetadata(AudioMetadata{Title: "t", Album: "a", Artist: "r"})
	var payload []byte
	payload = append(payload, dmap.StringTag("minm", "t")...)
	payload = append(payload, dmap.StringTag("asal", "a")...)
	payload = append(payload, dmap.StringTag("asar", "r")...)
	assert.Equal(t, dmap.ContainerTag("mlit", payload), full)
}

func Test_teardown(t *testing.T) {
	conn := newEchoConn()
	session := createTestSession(conn)
	session.Context().RTSPSession = "77"

	_, err := session.Teardown(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, "TEARDOWN", conn.last().Method)
	assert.Equal(t, "77", conn.last().Headers["Session"])
	assert.Equal(t, StateClosed, session.State())
}

func Test_teardown_error_can_be_tolerated(t *testing.T) {
	conn := newEchoConn()
	session := createTestSession(conn)
	conn.statuses[session.URI()] = 454

	_, err := session.Teardown(context.Background(), false)
	require.ErrorIs(t, err, ErrStatus)

	resp, err := session.Teardown(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 454, resp.Code)
}
