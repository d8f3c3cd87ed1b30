package preview

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultHLSPort is the port MediaMTX serves HLS on out of the box.
const DefaultHLSPort = 8888

var apiPortSuffix = regexp.MustCompile(`:\d+$`)

// PlaybackURL derives the HLS playlist URL for a channel from the control
// API base URL: the API port is dropped and the HLS port substituted. The
// port is panel-wide, set with WithHLSPort; profiles carry no HLS port of
// their own.
func PlaybackURL(profileURL, channel string, hlsPort int) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(profileURL), "/")
	if base == "" {
		return "", fmt.Errorf("profile url is empty")
	}
	if channel == "" {
		return "", fmt.Errorf("channel name is empty")
	}
	if hlsPort <= 0 {
		hlsPort = DefaultHLSPort
	}
	base = apiPortSuffix.ReplaceAllString(base, "")
	return fmt.Sprintf("%s:%d/%s/index.m3u8", base, hlsPort, channel), nil
}
