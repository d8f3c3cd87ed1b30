package channels

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"srtpanel/internal/events"
	"srtpanel/internal/mediamtx"
	"srtpanel/internal/models"
)

func newTestService(t *testing.T, handler http.Handler) (*Service, *events.Bus) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := mediamtx.NewClient()
	client.SetConfig(mediamtx.Config{BaseURL: server.URL})
	bus := events.New(8)
	return NewService(client, bus, nil), bus
}

func TestValidateChannelName(t *testing.T) {
	valid := []string{"cam1", "studio_feed", "a", strings.Repeat("x", 100), "CAM-2"}
	for _, name := range valid {
		if !ValidName(name) {
			t.Errorf("expected %q to be valid", name)
		}
	}
	invalid := []string{"", "cam 1", "cam/1", strings.Repeat("x", 101), "cam.1", "café"}
	for _, name := range invalid {
		if ValidName(name) {
			t.Errorf("expected %q to be rejected", name)
		}
	}
}

func TestValidateSRTURL(t *testing.T) {
	valid := []string{
		"srt://10.0.0.5",
		"srt://encoder.local:6000",
		"srt://10.0.0.5:6000?streamid=publish&latency=120",
	}
	for _, raw := range valid {
		if !ValidSRTURL(raw) {
			t.Errorf("expected %q to be valid", raw)
		}
	}
	invalid := []string{"", "rtmp://host/live", "srt://", "srt://host path", "http://host"}
	for _, raw := range invalid {
		if ValidSRTURL(raw) {
			t.Errorf("expected %q to be rejected", raw)
		}
	}
}

func TestCreateListenerOmitsSource(t *testing.T) {
	var received map[string]any
	service, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/config/paths/add/cam1" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))

	channel, err := service.Create(context.Background(), Params{
		Name:        "cam1",
		Mode:        models.ModeListener,
		Source:      "srt://should.be.dropped:6000",
		PublishUser: "pub",
		PublishPass: "secret",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if channel.Mode != models.ModeListener || channel.Source != "" {
		t.Fatalf("unexpected channel %+v", channel)
	}
	if _, ok := received["source"]; ok {
		t.Fatal("listener payload must not carry source")
	}
}

func TestCreateCallerRequiresValidSource(t *testing.T) {
	service, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	_, err := service.Create(context.Background(), Params{Name: "relay", Mode: models.ModeCaller})
	if !errors.Is(err, ErrSourceRequired) {
		t.Fatalf("expected ErrSourceRequired, got %v", err)
	}

	_, err = service.Create(context.Background(), Params{Name: "relay", Mode: models.ModeCaller, Source: "rtmp://nope"})
	if !errors.Is(err, ErrInvalidSource) {
		t.Fatalf("expected ErrInvalidSource, got %v", err)
	}

	channel, err := service.Create(context.Background(), Params{Name: "relay", Mode: models.ModeCaller, Source: "srt://feed:6000"})
	if err != nil {
		t.Fatalf("Create caller: %v", err)
	}
	if channel.Source != "srt://feed:6000" {
		t.Fatalf("unexpected channel %+v", channel)
	}
}

func TestListInfersModeAndSkipsCatchAll(t *testing.T) {
	service, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(mediamtx.PathList{Items: []mediamtx.PathConfig{
			{Name: "all_others"},
			{Name: "cam1"},
			{Name: "legacy", Source: "rtsp://feed:8554/legacy"},
			{Name: "relay", Source: "srt://feed:6000"},
		}})
	}))

	list, err := service.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected catch-all filtered, got %d channels", len(list))
	}
	if list[0].Mode != models.ModeListener {
		t.Fatalf("cam1 should infer listener, got %s", list[0].Mode)
	}
	// Remotely configured paths may carry non-SRT sources; any source at all
	// means the server pulls the feed.
	if list[1].Mode != models.ModeCaller {
		t.Fatalf("legacy should infer caller, got %s", list[1].Mode)
	}
	if list[2].Mode != models.ModeCaller {
		t.Fatalf("relay should infer caller, got %s", list[2].Mode)
	}
}

func TestDuplicateProbesForFreeName(t *testing.T) {
	existing := map[string]mediamtx.PathConfig{
		"cam1":      {Name: "cam1", PublishUser: "pub"},
		"cam1_copy": {Name: "cam1_copy"},
	}
	var created string
	service, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v3/config/paths/get/"):
			name := strings.TrimPrefix(r.URL.Path, "/v3/config/paths/get/")
			conf, ok := existing[name]
			if !ok {
				http.NotFound(w, r)
				return
			}
			json.NewEncoder(w).Encode(conf)
		case strings.HasPrefix(r.URL.Path, "/v3/config/paths/add/"):
			created = strings.TrimPrefix(r.URL.Path, "/v3/config/paths/add/")
			w.WriteHeader(http.StatusOK)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	channel, err := service.Duplicate(context.Background(), "cam1")
	if err != nil {
		t.Fatalf("Duplicate: %v", err)
	}
	if created != "cam1_copy_1" || channel.Name != "cam1_copy_1" {
		t.Fatalf("expected cam1_copy_1, got created=%q channel=%+v", created, channel)
	}
	if channel.PublishUser != "pub" {
		t.Fatal("duplicate should copy credentials")
	}
}

func TestDuplicateAbortsOnTransportError(t *testing.T) {
	service, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/get/cam1") {
			json.NewEncoder(w).Encode(mediamtx.PathConfig{Name: "cam1"})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))

	if _, err := service.Duplicate(context.Background(), "cam1"); err == nil {
		t.Fatal("probe failure must abort duplication")
	}
}

func TestMutationsPublishEvents(t *testing.T) {
	service, bus := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	feed, cancel := bus.Subscribe(events.ChannelCreated, events.ChannelDeleted)
	defer cancel()

	if _, err := service.Create(context.Background(), Params{Name: "cam1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := service.Delete(context.Background(), "cam1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	first := <-feed
	if first.Kind != events.ChannelCreated || first.Subject != "cam1" {
		t.Fatalf("unexpected event %+v", first)
	}
	second := <-feed
	if second.Kind != events.ChannelDeleted {
		t.Fatalf("unexpected event %+v", second)
	}
}
