package observability

import (
	"net"
	"net/http"
	"strings"
)

// Handshake is what a websocket upgrade request says about its caller.
type Handshake struct {
	DeviceID  string
	RequestID string
	IP        string
}

// HandshakeFromRequest reads the caller's identity from an upgrade request.
// Browsers cannot set headers on a websocket handshake, so the query string
// (deviceId, requestId) is consulted when the headers are absent.
func HandshakeFromRequest(r *http.Request) Handshake {
	return Handshake{
		DeviceID:  headerOrQuery(r, "X-Device-Id", "deviceId"),
		RequestID: headerOrQuery(r, "X-Request-Id", "requestId"),
		IP:        clientIP(r),
	}
}

func headerOrQuery(r *http.Request, header, param string) string {
	if v := r.Header.Get(header); v != "" {
		return v
	}
	return r.URL.Query().Get(param)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
