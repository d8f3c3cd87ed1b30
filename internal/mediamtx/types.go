package mediamtx

// PathConfig mirrors the subset of a MediaMTX path configuration the panel
// manages. Source is omitted for listener paths so MediaMTX falls back to
// accepting an inbound publisher.
type PathConfig struct {
	Name        string `json:"name,omitempty"`
	Source      string `json:"source,omitempty"`
	PublishUser string `json:"publishUser,omitempty"`
	PublishPass string `json:"publishPass,omitempty"`
	ReadUser    string `json:"readUser,omitempty"`
	ReadPass    string `json:"readPass,omitempty"`
}

// PathList is the paged envelope returned by /v3/config/paths/list.
type PathList struct {
	ItemCount int          `json:"itemCount"`
	PageCount int          `json:"pageCount"`
	Items     []PathConfig `json:"items"`
}

// SRTConnection describes one live SRT connection as reported by MediaMTX.
type SRTConnection struct {
	ID         string `json:"id"`
	Path       string `json:"path"`
	State      string `json:"state"`
	RemoteAddr string `json:"remoteAddr"`
	Created    string `json:"created"`
}

// SRTConnectionList is the paged envelope returned by /v3/srtconns/list.
type SRTConnectionList struct {
	ItemCount int             `json:"itemCount"`
	PageCount int             `json:"pageCount"`
	Items     []SRTConnection `json:"items"`
}
