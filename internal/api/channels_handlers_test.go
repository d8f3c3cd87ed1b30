package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"srtpanel/internal/mediamtx"
	"srtpanel/internal/models"
)

// pathStub fakes the slice of the MediaMTX control API the channel
// handlers exercise.
type pathStub struct {
	mu       sync.Mutex
	paths    map[string]mediamtx.PathConfig
	lastAdd  []byte
	requests int
}

func newPathStub() *pathStub {
	return &pathStub{paths: map[string]mediamtx.PathConfig{}}
}

func (s *pathStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.requests++

		writeNotFound := func() {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"path not found"}`))
		}

		switch {
		case r.URL.Path == "/v3/config/paths/list":
			items := make([]mediamtx.PathConfig, 0, len(s.paths))
			for name, conf := range s.paths {
				conf.Name = name
				items = append(items, conf)
			}
			json.NewEncoder(w).Encode(mediamtx.PathList{
				ItemCount: len(items),
				PageCount: 1,
				Items:     items,
			})
		case strings.HasPrefix(r.URL.Path, "/v3/config/paths/get/"):
			name := strings.TrimPrefix(r.URL.Path, "/v3/config/paths/get/")
			conf, ok := s.paths[name]
			if !ok {
				writeNotFound()
				return
			}
			conf.Name = name
			json.NewEncoder(w).Encode(conf)
		case strings.HasPrefix(r.URL.Path, "/v3/config/paths/add/"):
			name := strings.TrimPrefix(r.URL.Path, "/v3/config/paths/add/")
			body := new(bytes.Buffer)
			body.ReadFrom(r.Body)
			s.lastAdd = body.Bytes()
			var conf mediamtx.PathConfig
			json.Unmarshal(s.lastAdd, &conf)
			s.paths[name] = conf
			w.WriteHeader(http.StatusOK)
		case strings.HasPrefix(r.URL.Path, "/v3/config/paths/patch/"):
			name := strings.TrimPrefix(r.URL.Path, "/v3/config/paths/patch/")
			if _, ok := s.paths[name]; !ok {
				writeNotFound()
				return
			}
			var conf mediamtx.PathConfig
			json.NewDecoder(r.Body).Decode(&conf)
			s.paths[name] = conf
			w.WriteHeader(http.StatusOK)
		case strings.HasPrefix(r.URL.Path, "/v3/config/paths/delete/"):
			name := strings.TrimPrefix(r.URL.Path, "/v3/config/paths/delete/")
			if _, ok := s.paths[name]; !ok {
				writeNotFound()
				return
			}
			delete(s.paths, name)
			w.WriteHeader(http.StatusOK)
		default:
			writeNotFound()
		}
	})
}

func newChannelTestHandler(t *testing.T) (*Handler, *pathStub) {
	t.Helper()
	stub := newPathStub()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	handler, _ := newTestHandler(t)
	handler.Client.SetConfig(mediamtx.Config{BaseURL: srv.URL})
	return handler, stub
}

func TestCreateListenerChannelOmitsSource(t *testing.T) {
	handler, stub := newChannelTestHandler(t)

	body := []byte(`{"name":"cam1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/channels", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ChannelsCollection(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var channel models.Channel
	decodeBody(t, rec, &channel)
	if channel.Mode != models.ModeListener {
		t.Fatalf("expected listener mode, got %q", channel.Mode)
	}
	if strings.Contains(string(stub.lastAdd), "source") {
		t.Fatalf("listener payload must omit source, got %s", stub.lastAdd)
	}
}

func TestCreateCallerChannelValidatesSource(t *testing.T) {
	handler, _ := newChannelTestHandler(t)

	body := []byte(`{"name":"cam1","mode":"caller","source":"rtmp://bad"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/channels", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ChannelsCollection(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestCreateChannelRejectsInvalidName(t *testing.T) {
	handler, _ := newChannelTestHandler(t)

	body := []byte(`{"name":"bad name!"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/channels", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ChannelsCollection(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestListChannelsUnconfiguredServerConflicts(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/channels", nil)
	rec := httptest.NewRecorder()
	handler.ChannelsCollection(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 without a configured server, got %d", rec.Code)
	}
}

func TestDeleteChannelRequiresConfirmation(t *testing.T) {
	handler, stub := newChannelTestHandler(t)
	stub.paths["cam1"] = mediamtx.PathConfig{}

	req := httptest.NewRequest(http.MethodDelete, "/api/channels/cam1", nil)
	rec := httptest.NewRecorder()
	handler.ChannelByName(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 without confirm, got %d", rec.Code)
	}
	if _, ok := stub.paths["cam1"]; !ok {
		t.Fatal("channel must survive an unconfirmed delete")
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/channels/cam1?confirm=true", nil)
	rec = httptest.NewRecorder()
	handler.ChannelByName(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := stub.paths["cam1"]; ok {
		t.Fatal("expected channel to be deleted")
	}
}

func TestDuplicateChannelPicksNextFreeName(t *testing.T) {
	handler, stub := newChannelTestHandler(t)
	stub.paths["cam1"] = mediamtx.PathConfig{Source: "srt://origin:7001"}
	stub.paths["cam1_copy"] = mediamtx.PathConfig{}

	req := httptest.NewRequest(http.MethodPost, "/api/channels/cam1/duplicate", nil)
	rec := httptest.NewRecorder()
	handler.ChannelByName(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var channel models.Channel
	decodeBody(t, rec, &channel)
	if channel.Name != "cam1_copy_1" {
		t.Fatalf("expected cam1_copy_1, got %q", channel.Name)
	}
	if _, ok := stub.paths["cam1_copy_1"]; !ok {
		t.Fatal("expected duplicate to be created on the server")
	}
}

func TestPatchChannelMergesOmittedFields(t *testing.T) {
	handler, stub := newChannelTestHandler(t)
	stub.paths["cam1"] = mediamtx.PathConfig{
		Source:      "srt://origin:7001",
		PublishUser: "pub",
		PublishPass: "pass",
	}

	body := []byte(`{"readUser":"viewer","readPass":"view-pass"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/channels/cam1", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ChannelByName(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var channel models.Channel
	decodeBody(t, rec, &channel)
	if channel.ReadUser != "viewer" {
		t.Fatalf("expected patched read user, got %q", channel.ReadUser)
	}
	if channel.Source != "srt://origin:7001" {
		t.Fatalf("expected source to survive the patch, got %q", channel.Source)
	}
	if channel.Mode != models.ModeCaller {
		t.Fatalf("expected caller mode, got %q", channel.Mode)
	}
}

func TestGetUnknownChannelReturnsNotFound(t *testing.T) {
	handler, _ := newChannelTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/channels/ghost", nil)
	rec := httptest.NewRecorder()
	handler.ChannelByName(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}
