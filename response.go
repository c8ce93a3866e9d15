package reactord

import "fmt"

// statusText maps the status codes this server emits to their reason
// phrase, per spec.md §6.
var statusText = map[int]string{
	200: "OK",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	500: "Internal Server Error",
}

const notFoundBody = `<html><head><title>404 Not Found</title></head>` +
	`<body><h1>404 Not Found</h1><p>The requested resource was not found on this server.</p></body></html>`

const forbiddenBody = `<html><head><title>403 Forbidden</title></head>` +
	`<body><h1>403 Forbidden</h1></body></html>`

const badRequestBody = `<html><head><title>400 Bad Request</title></head>` +
	`<body><h1>400 Bad Request</h1></body></html>`

const internalErrorBody = `<html><head><title>500 Internal Server Error</title></head>` +
	`<body><h1>500 Internal Server Error</h1></body></html>`

// buildResponseHeader renders the status line and headers for a response
// whose body is contentLength bytes of contentType, per spec.md §6.
func buildResponseHeader(status int, contentType string, contentLength int, keepAlive bool) []byte {
	conn := "close"
	if keepAlive {
		conn = "keep-alive"
	}
	return []byte(fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nContent-Type: %s\r\nContent-Length: %d\r\nConnection: %s\r\n\r\n",
		status, statusText[status], contentType, contentLength, conn))
}

// errorResponse renders a full status-line+headers+body response for one
// of the server's fixed error bodies.
func errorResponse(status int, body string, keepAlive bool) []byte {
	header := buildResponseHeader(status, "text/html", len(body), keepAlive)
	out := make([]byte, 0, len(header)+len(body))
	out = append(out, header...)
	out = append(out, body...)
	return out
}
