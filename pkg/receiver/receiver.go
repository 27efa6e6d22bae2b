// Package receiver is a minimal RTSP audio receiver for development and
// tests. It answers the control channel commands a sender issues and can
// deliberately reorder its responses.
package receiver

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fr3shw3b/raop-control/pkg/dmap"
	"github.com/fr3shw3b/raop-control/pkg/rtsp"
	"github.com/fr3shw3b/raop-control/pkg/utils"
	"github.com/sirupsen/logrus"
	"howett.net/plist"
)

// How long a held response waits for more requests before the held
// batch is flushed.
const defaultFlushDelay = 20 * time.Millisecond

type ReceiverParams struct {
	Name string
	// ReorderWindow holds up to this many responses and writes them in
	// reverse order. Values below 2 answer in order.
	ReorderWindow int
	FlushDelay    time.Duration
	InfoSupported bool
	// FeedbackStatus is the status returned for POST /feedback, 200 when zero.
	FeedbackStatus int
	// DropMethods are never answered.
	DropMethods []string
	// DelayMethods are answered after ResponseDelay. Requests behind
	// them wait too.
	DelayMethods  []string
	ResponseDelay time.Duration

	ServerPort  int
	ControlPort int
	TimingPort  int
}

type Receiver struct {
	params   *ReceiverParams
	logger   *logrus.Logger
	listener net.Listener
	wg       sync.WaitGroup

	mu          sync.Mutex
	nextSession int
	sessions    map[string]bool
	volume      *float64
	metadata    []byte
	track       rtsp.AudioMetadata
	methods     []string
	conns       map[net.Conn]struct{}
	closed      bool
}

func NewReceiver(params *ReceiverParams, logger *logrus.Logger) *Receiver {
	if params.FlushDelay <= 0 {
		params.FlushDelay = defaultFlushDelay
	}
	return &Receiver{
		params:   params,
		logger:   logger,
		sessions: map[string]bool{},
		conns:    map[net.Conn]struct{}{},
	}
}

// Listen starts accepting control connections on address.
func (r *Receiver) Listen(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	r.listener = listener

	r.wg.Add(1)
	go r.acceptLoop()
	return nil
}

func (r *Receiver) Addr() net.Addr {
	return r.listener.Addr()
}

func (r *Receiver) Close() error {
	r.mu.Lock()
	r.closed = true
	for conn := range r.conns {
		conn.Close()
	}
	r.mu.Unlock()

	err := r.listener.Close()
	r.wg.Wait()
	return err
}

// Volume returns the last volume set by a sender.
func (r *Receiver) Volume() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.volume == nil {
		return 0, false
	}
	return *r.volume, true
}

// Metadata returns the last DMAP metadata payload received.
func (r *Receiver) Metadata() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metadata
}

// Track returns the last track metadata received.
func (r *Receiver) Track() rtsp.AudioMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.track
}

// Methods lists the methods of every request received, in arrival order.
func (r *Receiver) Methods() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.methods...)
}

func (r *Receiver) acceptLoop() {
	defer r.wg.Done()
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				r.logger.Error("accept error: ", err)
			}
			return
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			conn.Close()
			return
		}
		r.conns[conn] = struct{}{}
		r.mu.Unlock()

		r.wg.Add(1)
		go r.serve(conn)
	}
}

func (r *Receiver) serve(conn net.Conn) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.conns, conn)
		r.mu.Unlock()
		conn.Close()
	}()

	log := r.logger.WithField("remote", conn.RemoteAddr().String())
	log.Info("sender connected")

	reader := bufio.NewReader(conn)
	var held []*rtsp.Response
	flush := func() {
		for i := len(held) - 1; i >= 0; i -= 1 {
			if _, err := conn.Write(rtsp.EncodeResponse(held[i])); err != nil {
				log.Debug("write error: ", err)
			}
		}
		held = held[:0]
	}

	for {
		if len(held) > 0 {
			conn.SetReadDeadline(time.Now().Add(r.params.FlushDelay))
		} else {
			conn.SetReadDeadline(time.Time{})
		}

		if _, err := reader.Peek(1); err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				flush()
				continue
			}
			log.Debug("sender disconnected: ", err)
			return
		}
		conn.SetReadDeadline(time.Time{})

		req, err := rtsp.ReadRequest(reader)
		if err != nil {
			log.Warn("malformed request: ", err)
			return
		}

		resp := r.handle(req)
		if resp == nil {
			continue
		}
		if hasMethod(r.params.DelayMethods, req.Method) {
			time.Sleep(r.params.ResponseDelay)
		}

		if r.params.ReorderWindow < 2 {
			conn.Write(rtsp.EncodeResponse(resp))
			continue
		}
		held = append(held, resp)
		if len(held) >= r.params.ReorderWindow {
			flush()
		}
	}
}

func (r *Receiver) handle(req *rtsp.Request) *rtsp.Response {
	r.mu.Lock()
	r.methods = append(r.methods, req.Method)
	r.mu.Unlock()

	if hasMethod(r.params.DropMethods, req.Method) {
		return nil
	}

	cseq, _ := header(req, utils.HeaderCSeq)
	resp := &rtsp.Response{
		Protocol: utils.ProtocolTag,
		Code:     http.StatusOK,
		Message:  "OK",
		Headers:  map[string]string{utils.HeaderCSeq: cseq},
	}

	switch {
	case req.Method == http.MethodGet && strings.HasSuffix(req.URI, "/info"):
		r.handleInfo(resp)
	case req.Method == http.MethodPost && strings.HasSuffix(req.URI, "/feedback"):
		if r.params.FeedbackStatus != 0 {
			setStatus(resp, r.params.FeedbackStatus)
		}
	case req.Method == http.MethodPost && strings.HasSuffix(req.URI, "/auth-setup"):
	case req.Method == "ANNOUNCE":
	case req.Method == "SETUP":
		r.handleSetup(resp)
	case req.Method == "RECORD", req.Method == "TEARDOWN":
		r.checkSession(req, resp)
	case req.Method == "SET_PARAMETER":
		r.handleSetParameter(req, resp)
	default:
		setStatus(resp, http.StatusMethodNotAllowed)
	}
	return resp
}

func (r *Receiver) handleInfo(resp *rtsp.Response) {
	if !r.params.InfoSupported {
		setStatus(resp, http.StatusNotFound)
		return
	}
	body, err := plist.Marshal(map[string]any{
		"name":  r.params.Name,
		"model": "AudioReceiver1,1",
	}, plist.BinaryFormat)
	if err != nil {
		setStatus(resp, http.StatusInternalServerError)
		return
	}
	resp.Headers[utils.HeaderContentType] = "application/x-apple-binary-plist"
	resp.Body = body
}

func (r *Receiver) handleSetup(resp *rtsp.Response) {
	r.mu.Lock()
	r.nextSession += 1
	session := strconv.Itoa(r.nextSession)
	r.sessions[session] = true
	r.mu.Unlock()

	resp.Headers[utils.HeaderSession] = session
	resp.Headers[utils.HeaderTransport] = fmt.Sprintf(
		"RTP/AVP/UDP;unicast;mode=record;server_port=%d;control_port=%d;timing_port=%d",
		r.params.ServerPort, r.params.ControlPort, r.params.TimingPort,
	)
}

func (r *Receiver) checkSession(req *rtsp.Request, resp *rtsp.Response) {
	session, _ := header(req, utils.HeaderSession)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sessions[session] {
		setStatus(resp, 454)
		resp.Message = "Session Not Found"
		return
	}
	if req.Method == "TEARDOWN" {
		delete(r.sessions, session)
	}
}

func (r *Receiver) handleSetParameter(req *rtsp.Request, resp *rtsp.Response) {
	switch req.ContentType {
	case utils.ContentTypeParameters:
		name, value, found := strings.Cut(string(req.Body), ":")
		if !found {
			setStatus(resp, http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(name) == "volume" {
			volume, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				setStatus(resp, http.StatusBadRequest)
				return
			}
			r.mu.Lock()
			r.volume = &volume
			r.mu.Unlock()
		}
	case utils.ContentTypeDMAPTagged:
		track, err := decodeTrack(req.Body)
		if err != nil {
			r.logger.Debug("malformed metadata: ", err)
			setStatus(resp, http.StatusBadRequest)
			return
		}
		r.mu.Lock()
		r.metadata = req.Body
		r.track = track
		r.mu.Unlock()
	default:
		setStatus(resp, http.StatusUnsupportedMediaType)
	}
}

func decodeTrack(body []byte) (rtsp.AudioMetadata, error) {
	track := rtsp.AudioMetadata{}
	items, err := dmap.Decode(body)
	if err != nil {
		return track, err
	}
	for _, item := range items {
		if item.Name != dmap.TagListingItem {
			continue
		}
		fields, err := dmap.Decode(item.Payload)
		if err != nil {
			return track, err
		}
		for _, field := range fields {
			switch field.Name {
			case dmap.TagItemName:
				track.Title = string(field.Payload)
			case dmap.TagAlbum:
				track.Album = string(field.Payload)
			case dmap.TagArtist:
				track.Artist = string(field.Payload)
			}
		}
	}
	return track, nil
}

func hasMethod(methods []string, method string) bool {
	for _, candidate := range methods {
		if candidate == method {
			return true
		}
	}
	return false
}

func setStatus(resp *rtsp.Response, code int) {
	resp.Code = code
	resp.Message = http.StatusText(code)
}

func header(req *rtsp.Request, name string) (string, bool) {
	resp := rtsp.Response{Headers: req.Headers}
	return resp.Header(name)
}
