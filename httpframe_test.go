package reactord

import "testing"

func TestFindHeaderEndExactLineLengthAccepted(t *testing.T) {
	line := make([]byte, 100)
	for i := range line {
		line[i] = 'a'
	}
	buf := append(append([]byte("GET / HTTP/1.1\r\nX-Pad: "), line...), "\r\n\r\n"...)

	end, err := FindHeaderEnd(buf, len("X-Pad: ")+len(line)) // limit == header line length
	if err != nil {
		t.Fatalf("FindHeaderEnd: %v", err)
	}
	if end != len(buf) {
		t.Fatalf("end = %d, want %d", end, len(buf))
	}
}

func TestFindHeaderEndLineTooLongRejected(t *testing.T) {
	line := make([]byte, 100)
	for i := range line {
		line[i] = 'a'
	}
	buf := append([]byte("GET / HTTP/1.1\r\nX-Pad: "), line...) // no terminating CRLF yet

	_, err := FindHeaderEnd(buf, len("X-Pad: ")+len(line)-1) // one byte over the limit
	if err != ErrFramingLineTooLong {
		t.Fatalf("FindHeaderEnd error = %v, want ErrFramingLineTooLong", err)
	}
}

func TestFindHeaderEndRejectsCompletedOverLongLine(t *testing.T) {
	line := make([]byte, 100)
	for i := range line {
		line[i] = 'a'
	}
	// The over-long line is CRLF-terminated and more header bytes (and
	// eventually the blank line) follow, so a tail-only length check would
	// miss it entirely.
	buf := append(append([]byte("GET / HTTP/1.1\r\nX-Pad: "), line...), "\r\nHost: x\r\n\r\n"...)

	_, err := FindHeaderEnd(buf, 16)
	if err != ErrFramingLineTooLong {
		t.Fatalf("FindHeaderEnd error = %v, want ErrFramingLineTooLong", err)
	}
}

func TestFindHeaderEndNeedsMoreData(t *testing.T) {
	buf := []byte("GET / HTTP/1.1\r\nHost: x\r\n")
	end, err := FindHeaderEnd(buf, 8192)
	if err != nil {
		t.Fatalf("FindHeaderEnd: %v", err)
	}
	if end != -1 {
		t.Fatalf("end = %d, want -1 (incomplete headers)", end)
	}
}

func TestParseRequestAcceptsGETAndPOST(t *testing.T) {
	for _, method := range []string{"GET", "POST"} {
		raw := []byte(method + " /index.html HTTP/1.1\r\nHost: x\r\n\r\n")
		req, err := ParseRequest(raw)
		if err != nil {
			t.Fatalf("ParseRequest(%s): %v", method, err)
		}
		if req.Method != method {
			t.Fatalf("Method = %q, want %q", req.Method, method)
		}
	}
}

func TestParseRequestRejectsOtherMethods(t *testing.T) {
	raw := []byte("DELETE /x HTTP/1.1\r\nHost: x\r\n\r\n")
	_, err := ParseRequest(raw)
	if err != ErrFramingBadMethod {
		t.Fatalf("ParseRequest error = %v, want ErrFramingBadMethod", err)
	}
}

func TestParseRequestContentLength(t *testing.T) {
	raw := []byte("POST /submit HTTP/1.1\r\nContent-Length: 42\r\n\r\n")
	req, err := ParseRequest(raw)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.ContentLength != 42 {
		t.Fatalf("ContentLength = %d, want 42", req.ContentLength)
	}
}

func TestParseRequestHeaderLookupCaseInsensitive(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\nConnection: Keep-Alive\r\n\r\n")
	req, err := ParseRequest(raw)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if v, ok := req.Header("connection"); !ok || v != "Keep-Alive" {
		t.Fatalf("Header(\"connection\") = %q, %v, want \"Keep-Alive\", true", v, ok)
	}
	if !req.KeepAlive() {
		t.Fatalf("KeepAlive() = false, want true")
	}
}

func TestResolvePathRootMapsToIndex(t *testing.T) {
	got, ok := ResolvePath("/var/www", "/")
	if !ok {
		t.Fatalf("ResolvePath(\"/\") ok = false")
	}
	if want := "/var/www/index.html"; got != want {
		t.Fatalf("ResolvePath(\"/\") = %q, want %q", got, want)
	}
}

func TestResolvePathRejectsDotDot(t *testing.T) {
	_, ok := ResolvePath("/var/www", "/../etc/passwd")
	if ok {
		t.Fatalf("ResolvePath with .. should be rejected")
	}
}
