package api

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// handleDeviceProxy forwards /api/{deviceId}/<rest> to http://host:port/<rest>
// on the feeder's control API. The Authorization header is not forwarded.
func (s *Server) handleDeviceProxy(w http.ResponseWriter, r *http.Request) {
	dev := deviceFromContext(r.Context())
	host, port := s.devices.Endpoint(dev)
	target := net.JoinHostPort(host, strconv.Itoa(port))
	rest := "/" + strings.TrimPrefix(chi.URLParam(r, "*"), "/")

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = "http"
			pr.Out.URL.Host = target
			pr.Out.URL.Path = rest
			pr.Out.URL.RawPath = ""
			pr.Out.Host = target
			pr.Out.Header.Del("Authorization")
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.Warn("device proxy failed",
				"device_id", dev.ID,
				"target", target,
				"path", rest,
				"error", err,
			)
			writeError(w, http.StatusBadGateway, ErrCodeBadGateway, fmt.Sprintf("device %s unreachable", dev.Serial))
		},
	}
	proxy.ServeHTTP(w, r)
}
