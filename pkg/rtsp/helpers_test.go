package rtsp

import (
	"context"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
)

func createLogger() *logrus.Logger {
	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02T15:04:05.999999999Z07:00"
	customFormatter.FullTimestamp = true
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(customFormatter)
	return logger
}

func response(cseq uint64, code int) *Response {
	return &Response{
		Protocol: "RTSP/1.0",
		Code:     code,
		Message:  "status",
		Headers:  map[string]string{"CSeq": strconv.FormatUint(cseq, 10)},
	}
}

// scriptedConn records every request and hands out whatever response the
// test pushes on reads, regardless of which request is reading.
type scriptedConn struct {
	mu       sync.Mutex
	requests []*Request
	sent     chan *Request
	reads    chan *Response
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{
		sent:  make(chan *Request, 128),
		reads: make(chan *Response, 128),
	}
}

func (c *scriptedConn) SendAndReceive(ctx context.Context, req *Request) (*Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	c.sent <- req

	select {
	case resp := <-c.reads:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *scriptedConn) LocalIP() string  { return "10.0.0.1" }
func (c *scriptedConn) RemoteIP() string { return "10.0.0.2" }

// echoConn answers each request immediately with its own CSeq and the
// status configured for the request URI.
type echoConn struct {
	mu       sync.Mutex
	requests []*Request
	statuses map[string]int
	bodies   map[string][]byte
	headers  map[string]string
}

func newEchoConn() *echoConn {
	return &echoConn{statuses: map[string]int{}, bodies: map[string][]byte{}, headers: map[string]string{}}
}

func (c *echoConn) SendAndReceive(_ context.Context, req *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)

	code, ok := c.statuses[req.URI]
	if !ok {
		code = 200
	}
	headers := map[string]string{"CSeq": req.Headers["CSeq"]}
	for key, value := range c.headers {
		headers[key] = value
	}
	return &Response{Protocol: "RTSP/1.0", Code: code, Message: "status", Headers: headers, Body: c.bodies[req.URI]}, nil
}

func (c *echoConn) last() *Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

func (c *echoConn) LocalIP() string  { return "10.0.0.1" }
func (c *echoConn) RemoteIP() string { return "10.0.0.2" }
