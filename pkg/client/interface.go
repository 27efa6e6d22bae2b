package client

import (
	"context"

	"github.com/fr3shw3b/raop-control/pkg/rtsp"
)

type Client interface {
	// Connect dials the receiver and prepares an audio session.
	Connect(ctx context.Context) error
	// Stream negotiates the session up to recording and applies the
	// initial volume and metadata.
	Stream(ctx context.Context, params *StreamParams) (Result, error)
	// Session is nil until Connect succeeds.
	Session() *rtsp.Session
	// Close tears the session down and releases the connection.
	Close() error
}
