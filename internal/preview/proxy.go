package preview

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"srtpanel/internal/channels"
)

// Handler returns the HLS reverse proxy mounted under prefix (for example
// "/preview/"). Requests for /preview/{channel}/rest are forwarded to the
// active server's HLS origin, so the browser can play streams through the
// panel origin without a cross-origin setup on MediaMTX. Hidden channels are
// not served.
func (s *Service) Handler(prefix string) http.Handler {
	proxy := &httputil.ReverseProxy{
		Director: func(r *http.Request) {},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.Error("preview proxy error", "error", err, "path", r.URL.Path)
			http.Error(w, "preview temporarily unavailable", http.StatusBadGateway)
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, prefix)
		channel, remainder, found := strings.Cut(rest, "/")
		if !found || channel == "" || remainder == "" {
			http.NotFound(w, r)
			return
		}
		if !channels.ValidName(channel) {
			http.NotFound(w, r)
			return
		}
		if !s.Visible(channel) {
			http.Error(w, "preview hidden", http.StatusForbidden)
			return
		}
		playbackURL, err := s.PlaybackURL(channel)
		if err != nil {
			http.Error(w, "no server configured", http.StatusServiceUnavailable)
			return
		}
		origin, err := url.Parse(playbackURL)
		if err != nil {
			http.Error(w, "invalid playback url", http.StatusBadGateway)
			return
		}

		target := *r
		targetURL := *r.URL
		targetURL.Scheme = origin.Scheme
		targetURL.Host = origin.Host
		targetURL.Path = "/" + channel + "/" + remainder
		target.URL = &targetURL
		target.Host = origin.Host

		if strings.HasSuffix(remainder, ".m3u8") {
			s.markPlayer(channel)
		}
		proxy.ServeHTTP(w, &target)
	})
}
