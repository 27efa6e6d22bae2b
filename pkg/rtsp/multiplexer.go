package rtsp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fr3shw3b/raop-control/pkg/utils"
	"github.com/sirupsen/logrus"
)

// DefaultExchangeTimeout bounds how long an exchange waits for its response.
const DefaultExchangeTimeout = 4 * time.Second

type MultiplexerParams struct {
	// DACPID and ActiveRemote are added to every request so the receiver
	// can address remote control events back to this sender.
	DACPID       string
	ActiveRemote uint32
	Timeout      time.Duration
}

// Multiplexer sequences requests on a shared connection and hands each
// response to the exchange that owns its CSeq, no matter which
// exchange's read picked it up.
type Multiplexer struct {
	params  MultiplexerParams
	cseq    atomic.Uint64
	metrics *Metrics
	logger  *logrus.Logger

	mu      sync.Mutex
	pending map[uint64]*pendingRequest
}

// pendingRequest is the table entry for one outstanding exchange.
// done is closed exactly once, after response has been stored.
type pendingRequest struct {
	done     chan struct{}
	response *Response
}

func NewMultiplexer(params *MultiplexerParams, metrics *Metrics, logger *logrus.Logger) *Multiplexer {
	m := &Multiplexer{
		params:  *params,
		metrics: metrics,
		logger:  logger,
		pending: map[uint64]*pendingRequest{},
	}
	if m.params.Timeout <= 0 {
		m.params.Timeout = DefaultExchangeTimeout
	}
	return m
}

// Exchange sends cmd on conn and returns the response carrying the same
// CSeq. cmd.URI must already be resolved.
//
// The deadline covers both the transport call and the wait for the
// correlated response. Responses with an error status are returned as a
// *StatusError unless cmd.AllowError is set.
func (m *Multiplexer) Exchange(ctx context.Context, conn Connection, cmd Command) (*Response, error) {
	started := time.Now()
	cseq := m.cseq.Add(1) - 1

	log := m.logger.WithFields(logrus.Fields{
		"cseq":   cseq,
		"method": cmd.Method,
		"uri":    cmd.URI,
	})

	headers := map[string]string{
		utils.HeaderCSeq:           strconv.FormatUint(cseq, 10),
		utils.HeaderDACPID:         m.params.DACPID,
		utils.HeaderActiveRemote:   strconv.FormatUint(uint64(m.params.ActiveRemote), 10),
		utils.HeaderClientInstance: m.params.DACPID,
	}
	for key, value := range cmd.Headers {
		headers[key] = value
	}

	entry := m.register(cseq)
	defer m.remove(cseq)

	ctx, cancel := context.WithTimeout(ctx, m.params.Timeout)
	defer cancel()

	log.Debug("sending request")
	resp, err := conn.SendAndReceive(ctx, &Request{
		Method:      cmd.Method,
		URI:         cmd.URI,
		Protocol:    utils.ProtocolTag,
		UserAgent:   utils.UserAgent,
		ContentType: cmd.ContentType,
		Headers:     headers,
		Body:        cmd.Body,
	})
	switch {
	case err == nil:
		m.deliver(cseq, resp, log)
	case signalled(entry):
		log.Debug("transport failed after the response was relayed: ", err)
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("request timed out in transport")
		m.metrics.observeExchange(cmd.Method, outcomeTimeout, started)
		return nil, &TimeoutError{CSeq: cseq, URI: cmd.URI}
	default:
		m.metrics.observeExchange(cmd.Method, outcomeTransportError, started)
		return nil, fmt.Errorf("%s %s: %w", cmd.Method, cmd.URI, err)
	}

	if !m.wait(ctx, entry) {
		if errors.Is(ctx.Err(), context.Canceled) {
			m.metrics.observeExchange(cmd.Method, outcomeTransportError, started)
			return nil, fmt.Errorf("%s %s: %w", cmd.Method, cmd.URI, ctx.Err())
		}
		log.Warn("no correlated response before deadline")
		m.metrics.observeExchange(cmd.Method, outcomeTimeout, started)
		return nil, &TimeoutError{CSeq: cseq, URI: cmd.URI}
	}

	m.mu.Lock()
	own := entry.response
	m.mu.Unlock()

	if own == nil {
		log.Error("wait signal fired without a stored response")
		m.metrics.observeExchange(cmd.Method, outcomeProtocolError, started)
		return nil, &ProtocolError{CSeq: cseq}
	}

	if !own.OK() && !cmd.AllowError {
		m.metrics.observeExchange(cmd.Method, outcomeStatusError, started)
		return nil, &StatusError{
			Method:  cmd.Method,
			URI:     cmd.URI,
			Code:    own.Code,
			Message: own.Message,
			Body:    own.Body,
		}
	}

	log.WithField("code", own.Code).Debug("received response")
	m.metrics.observeExchange(cmd.Method, outcomeOK, started)
	return own, nil
}

// Pending returns the number of outstanding exchanges.
func (m *Multiplexer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Multiplexer) register(cseq uint64) *pendingRequest {
	entry := &pendingRequest{done: make(chan struct{})}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[cseq] = entry
	m.metrics.setPending(len(m.pending))
	return entry
}

func (m *Multiplexer) remove(cseq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, cseq)
	m.metrics.setPending(len(m.pending))
}

// deliver stores resp in the entry matching its CSeq and fires that
// entry's signal. Responses for unknown or already answered sequence
// numbers are dropped.
func (m *Multiplexer) deliver(reader uint64, resp *Response, log *logrus.Entry) {
	respCSeq := resp.CSeq()
	if respCSeq == utils.InvalidCSeq {
		log.Debug("discarding response without CSeq")
		m.metrics.responseDiscarded()
		return
	}
	target := uint64(respCSeq)

	m.mu.Lock()
	entry, ok := m.pending[target]
	stored := ok && entry.response == nil
	if stored {
		entry.response = resp
		close(entry.done)
	}
	m.mu.Unlock()

	switch {
	case !ok:
		log.WithField("response_cseq", target).Debug("discarding response for unknown CSeq")
		m.metrics.responseDiscarded()
	case !stored:
		log.WithField("response_cseq", target).Warn("discarding duplicate response")
		m.metrics.responseDiscarded()
	case target != reader:
		log.WithField("response_cseq", target).Debug("relayed response to another request")
		m.metrics.responseRelayed()
	}
}

// wait blocks until entry is signalled or ctx ends. A signal that is
// already present wins over an expired context.
func (m *Multiplexer) wait(ctx context.Context, entry *pendingRequest) bool {
	select {
	case <-entry.done:
		return true
	case <-ctx.Done():
		return signalled(entry)
	}
}

func signalled(entry *pendingRequest) bool {
	select {
	case <-entry.done:
		return true
	default:
		return false
	}
}
