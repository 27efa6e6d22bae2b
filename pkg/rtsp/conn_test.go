package rtsp

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/fr3shw3b/raop-control/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func Test_encode_and_read_request(t *testing.T) {
	encoded := EncodeRequest(&Request{
		Method:      "SET_PARAMETER",
		URI:         "rtsp://10.0.0.1/1",
		Protocol:    "RTSP/1.0",
		UserAgent:   "AirPlay/540.31",
		ContentType: "text/parameters",
		Headers:     map[string]string{"CSeq": "3", "Session": "1"},
		Body:        []byte("volume: -20.000000"),
	})

	assert.True(t, bytes.HasPrefix(encoded, []byte("SET_PARAMETER rtsp://10.0.0.1/1 RTSP/1.0\r\nCSeq: 3\r\n")))

	req, err := ReadRequest(bufio.NewReader(bytes.NewReader(encoded)))
	require.NoError(t, err)
	assert.Equal(t, "SET_PARAMETER", req.Method)
	assert.Equal(t, "text/parameters", req.ContentType)
	assert.Equal(t, "AirPlay/540.31", req.UserAgent)
	assert.Equal(t, "volume: -20.000000", string(req.Body))
	value, _ := headerValue(req.Headers, "cseq")
	assert.Equal(t, "3", value)
}

func Test_read_response_with_body(t *testing.T) {
	raw := "RTSP/1.0 404 Not Found\r\nCSeq: 9\r\nContent-Length: 4\r\n\r\nnope"

	resp, err := ReadResponse(bufio.NewReader(bytes.NewReader([]byte(raw))))

	require.NoError(t, err)
	assert.Equal(t, 404, resp.Code)
	assert.Equal(t, "Not Found", resp.Message)
	assert.Equal(t, int64(9), resp.CSeq())
	assert.Equal(t, "nope", string(resp.Body))
	assert.False(t, resp.OK())
}

func Test_read_response_rejects_garbage(t *testing.T) {
	_, err := ReadResponse(bufio.NewReader(bytes.NewReader([]byte("garbage\r\n\r\n"))))
	assert.Error(t, err)
}

func Test_missing_cseq_is_invalid(t *testing.T) {
	resp := &Response{Headers: map[string]string{"Cseq": "x"}}
	assert.Equal(t, utils.InvalidCSeq, resp.CSeq())
	assert.Equal(t, utils.InvalidCSeq, (&Response{}).CSeq())
}

// reversingPeer reads count requests and answers them in reverse order.
func reversingPeer(t *testing.T, peer net.Conn, count int) {
	reader := bufio.NewReader(peer)
	requests := make([]*Request, 0, count)
	for i := 0; i < count; i += 1 {
		req, err := ReadRequest(reader)
		if err != nil {
			t.Error(err)
			return
		}
		requests = append(requests, req)
	}
	for i := len(requests) - 1; i >= 0; i -= 1 {
		cseq, _ := headerValue(requests[i].Headers, utils.HeaderCSeq)
		peer.Write(EncodeResponse(&Response{
			Code:    200,
			Message: "OK",
			Headers: map[string]string{utils.HeaderCSeq: cseq},
			Body:    []byte(requests[i].URI),
		}))
	}
}

func Test_conn_serves_concurrent_exchanges_answered_in_reverse(t *testing.T) {
	client, peer := net.Pipe()
	defer peer.Close()
	conn := NewConn(client, createLogger())
	defer conn.Close()

	go reversingPeer(t, peer, 2)

	session := createTestSession(conn)
	group, ctx := errgroup.WithContext(context.Background())
	for _, uri := range []string{"/one", "/two"} {
		uri := uri
		group.Go(func() error {
			resp, err := session.Exchange(ctx, Command{Method: "GET", URI: uri})
			if err != nil {
				return err
			}
			assert.Equal(t, uri, string(resp.Body))
			return nil
		})
	}

	require.NoError(t, group.Wait())
	assert.Equal(t, 0, session.Pending())
}

// collectRequests reads requests from peer until it is closed.
func collectRequests(peer net.Conn) <-chan *Request {
	reader := bufio.NewReader(peer)
	requests := make(chan *Request, 8)
	go func() {
		defer close(requests)
		for {
			req, err := ReadRequest(reader)
			if err != nil {
				return
			}
			requests <- req
		}
	}()
	return requests
}

func answer(peer net.Conn, req *Request) {
	cseq, _ := headerValue(req.Headers, utils.HeaderCSeq)
	peer.Write(EncodeResponse(&Response{Code: 200, Message: "OK", Headers: map[string]string{utils.HeaderCSeq: cseq}}))
}

func Test_conn_read_timeout_breaks_connection(t *testing.T) {
	client, peer := net.Pipe()
	defer peer.Close()
	conn := NewConn(client, createLogger())
	defer conn.Close()
	requests := collectRequests(peer)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := conn.SendAndReceive(ctx, &Request{Method: "GET", URI: "/slow", Protocol: "RTSP/1.0", Headers: map[string]string{"CSeq": "0"}})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	slow := <-requests
	go answer(peer, slow)

	_, err = conn.SendAndReceive(context.Background(), &Request{Method: "GET", URI: "/fast", Protocol: "RTSP/1.0", Headers: map[string]string{"CSeq": "1"}})
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func Test_conn_giving_up_on_read_turn_breaks_connection(t *testing.T) {
	client, peer := net.Pipe()
	defer peer.Close()
	conn := NewConn(client, createLogger())
	defer conn.Close()
	requests := collectRequests(peer)

	first := make(chan error, 1)
	go func() {
		_, err := conn.SendAndReceive(context.Background(), &Request{Method: "GET", URI: "/first", Protocol: "RTSP/1.0", Headers: map[string]string{"CSeq": "0"}})
		first <- err
	}()
	firstReq := <-requests
	// Give the first caller time to take its turn reading.
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := conn.SendAndReceive(ctx, &Request{Method: "GET", URI: "/second", Protocol: "RTSP/1.0", Headers: map[string]string{"CSeq": "1"}})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	<-requests

	go answer(peer, firstReq)
	<-first

	_, err = conn.SendAndReceive(context.Background(), &Request{Method: "GET", URI: "/third", Protocol: "RTSP/1.0", Headers: map[string]string{"CSeq": "2"}})
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func Test_late_response_over_tcp_fails_later_exchanges_fast(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		peer, err := listener.Accept()
		if err != nil {
			return
		}
		defer peer.Close()
		late := true
		for req := range collectRequests(peer) {
			if late {
				late = false
				time.Sleep(150 * time.Millisecond)
			}
			answer(peer, req)
		}
	}()

	logger := createLogger()
	conn, err := Dial(context.Background(), listener.Addr().String(), &DialParams{MaxReconnectAttempts: 1, DialTimeout: time.Second}, logger)
	require.NoError(t, err)
	defer conn.Close()
	mux := newTestMultiplexer(100 * time.Millisecond)

	_, err = mux.Exchange(context.Background(), conn, Command{Method: "GET", URI: "/slow"})
	require.ErrorIs(t, err, ErrTimeout)
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 5; i += 1 {
		_, err := mux.Exchange(context.Background(), conn, Command{Method: "GET", URI: "/after"})
		require.ErrorIs(t, err, ErrConnectionClosed)
		assert.NotErrorIs(t, err, ErrTimeout)
	}
	assert.Equal(t, 0, mux.Pending())
}

func Test_closed_conn_reports_connection_closed(t *testing.T) {
	client, peer := net.Pipe()
	defer peer.Close()
	conn := NewConn(client, createLogger())
	require.NoError(t, conn.Close())

	_, err := conn.SendAndReceive(context.Background(), &Request{Method: "GET", URI: "/", Protocol: "RTSP/1.0"})

	assert.ErrorIs(t, err, ErrConnectionClosed)
}
