package rtsp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/textproto"
	"sort"
	"strconv"
	"strings"

	"github.com/fr3shw3b/raop-control/pkg/utils"
)

// EncodeRequest renders a request in RTSP text framing. CSeq is written
// first, remaining headers in name order.
func EncodeRequest(req *Request) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s %s\r\n", req.Method, req.URI, req.Protocol)

	headers := map[string]string{}
	for key, value := range req.Headers {
		headers[key] = value
	}
	if req.UserAgent != "" {
		headers[utils.HeaderUserAgent] = req.UserAgent
	}
	if req.ContentType != "" {
		headers[utils.HeaderContentType] = req.ContentType
	}
	if len(req.Body) > 0 {
		headers[utils.HeaderContentLength] = strconv.Itoa(len(req.Body))
	}
	writeHeaders(&buf, headers)
	buf.Write(req.Body)
	return buf.Bytes()
}

// EncodeResponse renders a response in RTSP text framing.
func EncodeResponse(resp *Response) []byte {
	var buf bytes.Buffer
	protocol := resp.Protocol
	if protocol == "" {
		protocol = utils.ProtocolTag
	}
	fmt.Fprintf(&buf, "%s %d %s\r\n", protocol, resp.Code, resp.Message)

	headers := map[string]string{}
	for key, value := range resp.Headers {
		headers[key] = value
	}
	if len(resp.Body) > 0 {
		headers[utils.HeaderContentLength] = strconv.Itoa(len(resp.Body))
	}
	writeHeaders(&buf, headers)
	buf.Write(resp.Body)
	return buf.Bytes()
}

func writeHeaders(buf *bytes.Buffer, headers map[string]string) {
	if cseq, ok := headers[utils.HeaderCSeq]; ok {
		fmt.Fprintf(buf, "%s: %s\r\n", utils.HeaderCSeq, cseq)
	}
	keys := make([]string, 0, len(headers))
	for key := range headers {
		if key != utils.HeaderCSeq {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(buf, "%s: %s\r\n", key, headers[key])
	}
	buf.WriteString("\r\n")
}

// ReadResponse reads one framed response.
func ReadResponse(reader *bufio.Reader) (*Response, error) {
	tp := textproto.NewReader(reader)
	line, err := tp.ReadLine()
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("malformed status line %q", line)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("malformed status code in %q: %w", line, err)
	}

	resp := &Response{Protocol: parts[0], Code: code}
	if len(parts) == 3 {
		resp.Message = parts[2]
	}

	resp.Headers, resp.Body, err = readHeadersAndBody(tp, reader)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ReadRequest reads one framed request.
func ReadRequest(reader *bufio.Reader) (*Request, error) {
	tp := textproto.NewReader(reader)
	line, err := tp.ReadLine()
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed request line %q", line)
	}

	req := &Request{Method: parts[0], URI: parts[1], Protocol: parts[2]}
	req.Headers, req.Body, err = readHeadersAndBody(tp, reader)
	if err != nil {
		return nil, err
	}
	if value, ok := headerValue(req.Headers, utils.HeaderContentType); ok {
		req.ContentType = value
	}
	if value, ok := headerValue(req.Headers, utils.HeaderUserAgent); ok {
		req.UserAgent = value
	}
	return req, nil
}

func readHeadersAndBody(tp *textproto.Reader, reader *bufio.Reader) (map[string]string, []byte, error) {
	mime, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, nil, err
	}

	headers := make(map[string]string, len(mime))
	for key, values := range mime {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	lengthStr, ok := headerValue(headers, utils.HeaderContentLength)
	if !ok {
		return headers, nil, nil
	}
	length, err := strconv.Atoi(strings.TrimSpace(lengthStr))
	if err != nil || length < 0 {
		return nil, nil, fmt.Errorf("malformed content length %q", lengthStr)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(reader, body); err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	return headers, body, nil
}

func headerValue(headers map[string]string, name string) (string, bool) {
	resp := Response{Headers: headers}
	return resp.Header(name)
}
