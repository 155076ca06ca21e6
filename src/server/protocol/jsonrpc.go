package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"go.lsp.dev/jsonrpc2"

	"lsp-session-manager/src/internal/constants"
)

const contentLengthHeader = "Content-Length"

// FrameError reports a header block that could not be turned into a message.
// The reader has consumed the offending frame, so the stream is still aligned.
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string {
	return "invalid frame: " + e.Reason
}

// EncodeFrame prefixes body with the Content-Length header
func EncodeFrame(body []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(body) + 32)
	fmt.Fprintf(&buf, "%s: %d\r\n\r\n", contentLengthHeader, len(body))
	buf.Write(body)
	return buf.Bytes()
}

// WriteMessage encodes msg and writes one framed message
func WriteMessage(w io.Writer, msg jsonrpc2.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	_, err = w.Write(EncodeFrame(data))
	return err
}

// ReadFrame reads one header block and its body. Headers other than
// Content-Length are ignored. I/O failures are returned as-is; a malformed
// header block yields *FrameError.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	contentLength := -1
	var headerErr string

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF && line != "" {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			headerErr = fmt.Sprintf("malformed header line %q", line)
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(name), contentLengthHeader) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			headerErr = fmt.Sprintf("invalid Content-Length %q", strings.TrimSpace(value))
			continue
		}
		contentLength = n
	}

	if contentLength < 0 {
		if headerErr == "" {
			headerErr = "missing Content-Length"
		}
		return nil, &FrameError{Reason: headerErr}
	}
	if contentLength == 0 {
		return nil, &FrameError{Reason: "empty body"}
	}
	if contentLength > constants.MaxMessageSize {
		if _, err := io.CopyN(io.Discard, r, int64(contentLength)); err != nil {
			return nil, err
		}
		return nil, &FrameError{Reason: fmt.Sprintf("message of %d bytes exceeds limit", contentLength)}
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}

var idPattern = regexp.MustCompile(`"id"\s*:\s*(-?\d+)`)

// recoverID extracts a numeric request id from a body that failed to decode
func recoverID(body []byte) (jsonrpc2.ID, bool) {
	var raw []byte
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err == nil {
		raw = bytes.TrimSpace(probe.ID)
	} else if m := idPattern.FindSubmatch(body); m != nil {
		raw = m[1]
	}
	if len(raw) == 0 {
		return jsonrpc2.ID{}, false
	}
	n, err := strconv.ParseInt(string(raw), 10, 32)
	if err != nil {
		return jsonrpc2.ID{}, false
	}
	return jsonrpc2.NewNumberID(int32(n)), true
}
