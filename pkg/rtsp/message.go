package rtsp

import (
	"strconv"
	"strings"

	"github.com/fr3shw3b/raop-control/pkg/utils"
)

// Request is a fully assembled request as handed to a Connection.
type Request struct {
	Method      string
	URI         string
	Protocol    string
	UserAgent   string
	ContentType string
	Headers     map[string]string
	Body        []byte
}

// Response is a parsed response read from a Connection.
type Response struct {
	Protocol string
	Code     int
	Message  string
	Headers  map[string]string
	Body     []byte
}

// Header looks up a header by name ignoring case.
func (r *Response) Header(name string) (string, bool) {
	if value, ok := r.Headers[name]; ok {
		return value, true
	}
	for key, value := range r.Headers {
		if strings.EqualFold(key, name) {
			return value, true
		}
	}
	return "", false
}

// OK reports whether the status code is in the 2xx range.
func (r *Response) OK() bool {
	return r.Code >= 200 && r.Code < 300
}

// CSeq returns the response sequence number or utils.InvalidCSeq
// when it is missing or malformed.
func (r *Response) CSeq() int64 {
	value, ok := r.Header(utils.HeaderCSeq)
	if !ok {
		return utils.InvalidCSeq
	}
	cseq, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || cseq < 0 {
		return utils.InvalidCSeq
	}
	return cseq
}

// Command describes one control channel request before sequencing.
// An empty URI means the session URI.
type Command struct {
	Method      string
	URI         string
	ContentType string
	Headers     map[string]string
	Body        []byte
	AllowError  bool
}
