package channels

import (
	"errors"
	"regexp"
)

var (
	channelNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)
	srtURLPattern      = regexp.MustCompile(`^srt://[\w.-]+(:\d+)?(\?[\w=&.-]+)?$`)
)

var (
	// ErrInvalidName rejects channel names outside [A-Za-z0-9_-]{1,100}.
	ErrInvalidName = errors.New("channel name must be 1-100 characters of letters, digits, underscore or hyphen")
	// ErrInvalidSource rejects caller sources that are not srt:// URLs.
	ErrInvalidSource = errors.New("source must be a srt:// URL")
	// ErrSourceRequired is returned for caller channels without a source.
	ErrSourceRequired = errors.New("caller channels require a source URL")
)

// ValidName reports whether name is a legal channel name.
func ValidName(name string) bool {
	return channelNamePattern.MatchString(name)
}

// ValidSRTURL reports whether raw is a well-formed srt:// URL.
func ValidSRTURL(raw string) bool {
	return srtURLPattern.MatchString(raw)
}
