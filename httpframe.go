package reactord

import (
	"bytes"
	"strconv"
	"strings"
)

// Request is the result of framing one HTTP/1.1 message: request line plus
// a case-preserving header map (spec.md §4.5). Bodies are never buffered
// here; ContentLength is reported so the caller can drain and discard it.
type Request struct {
	Method        string
	Path          string
	Version       string
	Headers       map[string]string
	ContentLength int64 // -1 if absent
}

// Header looks up a header case-insensitively, matching HTTP semantics
// while still storing header names case-preserved for logging/echo.
func (r *Request) Header(name string) (string, bool) {
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// KeepAlive reports whether the request's own Connection header asks for
// keep-alive, defaulting to true for HTTP/1.1 and false for HTTP/1.0.
func (r *Request) KeepAlive() bool {
	if v, ok := r.Header("Connection"); ok {
		return strings.EqualFold(strings.TrimSpace(v), "keep-alive")
	}
	return r.Version == "HTTP/1.1"
}

// FindHeaderEnd scans buf for the blank line ("\r\n\r\n") terminating the
// request-line+headers block, enforcing maxLineLen per spec.md §4.5 on
// every line, terminated or not: a completed line longer than maxLineLen
// fails framing immediately rather than being allowed through once the
// blank line eventually arrives. It returns (-1, nil) when more data is
// needed and no limit has been violated yet, or (end, nil) with end =
// index just past the blank line.
func FindHeaderEnd(buf []byte, maxLineLen int) (int, error) {
	lineStart := 0
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] != '\r' || buf[i+1] != '\n' {
			continue
		}
		if i == lineStart {
			return i + 2, nil // blank line: end of headers
		}
		if i-lineStart > maxLineLen {
			return 0, ErrFramingLineTooLong
		}
		lineStart = i + 2
		i++
	}
	if len(buf)-lineStart > maxLineLen {
		return 0, ErrFramingLineTooLong
	}
	return -1, nil
}

// ParseRequest parses the request-line and headers out of raw, which must
// be exactly the bytes up to and including the terminating blank line
// (i.e. raw[:FindHeaderEnd(...)]). Only GET and POST are accepted; anything
// else is ErrFramingBadMethod per spec.md §4.5.
func ParseRequest(raw []byte) (*Request, error) {
	lines := bytes.Split(raw, []byte("\r\n"))
	if len(lines) < 1 || len(lines[0]) == 0 {
		return nil, ErrFramingMalformed
	}

	parts := strings.SplitN(string(lines[0]), " ", 3)
	if len(parts) != 3 {
		return nil, ErrFramingMalformed
	}
	method, path, version := parts[0], parts[1], parts[2]

	if method != "GET" && method != "POST" {
		return nil, ErrFramingBadMethod
	}
	if !strings.HasPrefix(version, "HTTP/1.") {
		return nil, ErrFramingMalformed
	}
	if path == "" || path[0] != '/' {
		return nil, ErrFramingMalformed
	}

	headers := make(map[string]string, len(lines)-1)
	for _, line := range lines[1:] {
		if len(line) == 0 {
			break
		}
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			return nil, ErrFramingMalformed
		}
		name := string(line[:colon])
		value := strings.TrimLeft(string(line[colon+1:]), " \t")
		headers[name] = value
	}

	req := &Request{Method: method, Path: path, Version: version, Headers: headers, ContentLength: -1}
	if v, ok := req.Header("Content-Length"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			req.ContentLength = n
		}
	}
	return req, nil
}

// ResolvePath maps a request path onto a filesystem path under root,
// applying the "/" -> "/index.html" rule from spec.md §6 and rejecting any
// attempt to escape root via "..".
func ResolvePath(root, reqPath string) (string, bool) {
	if reqPath == "/" {
		reqPath = "/index.html"
	}
	if strings.Contains(reqPath, "..") {
		return "", false
	}
	return strings.TrimRight(root, "/") + reqPath, true
}
