package rtsp

import "context"

// Connection is a duplex control connection shared by every command of
// a session.
//
// SendAndReceive writes one request and returns the next response read
// from the connection, which may belong to a different concurrent
// request. Implementations must allow concurrent callers.
type Connection interface {
	SendAndReceive(ctx context.Context, req *Request) (*Response, error)
	LocalIP() string
	RemoteIP() string
}
