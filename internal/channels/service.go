package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"srtpanel/internal/events"
	"srtpanel/internal/mediamtx"
	"srtpanel/internal/models"
)

// ErrTooManyCopies is returned when duplicate probing exhausts its candidate
// names.
var ErrTooManyCopies = errors.New("no free copy name available")

const maxDuplicateProbes = 50

// Params captures the attributes settable when creating or updating a
// channel. Source is only meaningful in caller mode and is dropped for
// listener channels.
type Params struct {
	Name        string
	Mode        models.ChannelMode
	Source      string
	PublishUser string
	PublishPass string
	ReadUser    string
	ReadPass    string
}

func (p Params) normalize() (Params, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Source = strings.TrimSpace(p.Source)
	p.PublishUser = strings.TrimSpace(p.PublishUser)
	p.ReadUser = strings.TrimSpace(p.ReadUser)
	if !ValidName(p.Name) {
		return Params{}, ErrInvalidName
	}
	if p.Mode == "" {
		if p.Source != "" {
			p.Mode = models.ModeCaller
		} else {
			p.Mode = models.ModeListener
		}
	}
	switch p.Mode {
	case models.ModeListener:
		p.Source = ""
	case models.ModeCaller:
		if p.Source == "" {
			return Params{}, ErrSourceRequired
		}
		if !ValidSRTURL(p.Source) {
			return Params{}, ErrInvalidSource
		}
	default:
		return Params{}, fmt.Errorf("unknown channel mode %q", p.Mode)
	}
	return p, nil
}

func (p Params) pathConfig() mediamtx.PathConfig {
	return mediamtx.PathConfig{
		Source:      p.Source,
		PublishUser: p.PublishUser,
		PublishPass: p.PublishPass,
		ReadUser:    p.ReadUser,
		ReadPass:    p.ReadPass,
	}
}

// Service manages channel paths on the active MediaMTX server.
type Service struct {
	client *mediamtx.Client
	bus    *events.Bus
	logger *slog.Logger
}

// NewService wires a channel service over the shared API client.
func NewService(client *mediamtx.Client, bus *events.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, bus: bus, logger: logger}
}

// List returns all channels configured on the server, excluding the catch-all
// path MediaMTX reports as "all_others".
func (s *Service) List(ctx context.Context) ([]models.Channel, error) {
	list, err := s.client.ListPaths(ctx)
	if err != nil {
		return nil, err
	}
	channels := make([]models.Channel, 0, len(list.Items))
	for _, item := range list.Items {
		if item.Name == "" || item.Name == "all_others" {
			continue
		}
		channels = append(channels, channelFromPath(item.Name, item))
	}
	return channels, nil
}

// Get fetches one channel by name.
func (s *Service) Get(ctx context.Context, name string) (models.Channel, error) {
	if !ValidName(name) {
		return models.Channel{}, ErrInvalidName
	}
	conf, err := s.client.GetPath(ctx, name)
	if err != nil {
		return models.Channel{}, err
	}
	return channelFromPath(name, conf), nil
}

// Create adds a new channel path.
func (s *Service) Create(ctx context.Context, params Params) (models.Channel, error) {
	params, err := params.normalize()
	if err != nil {
		return models.Channel{}, err
	}
	if err := s.client.AddPath(ctx, params.Name, params.pathConfig()); err != nil {
		return models.Channel{}, err
	}
	s.logger.Info("channel created", "channel", params.Name, "mode", params.Mode)
	s.publish(events.ChannelCreated, params.Name)
	return channelFromParams(params), nil
}

// Update patches an existing channel path.
func (s *Service) Update(ctx context.Context, name string, params Params) (models.Channel, error) {
	params.Name = name
	params, err := params.normalize()
	if err != nil {
		return models.Channel{}, err
	}
	if err := s.client.PatchPath(ctx, name, params.pathConfig()); err != nil {
		return models.Channel{}, err
	}
	s.logger.Info("channel updated", "channel", name, "mode", params.Mode)
	s.publish(events.ChannelUpdated, name)
	return channelFromParams(params), nil
}

// Delete removes a channel path from the server.
func (s *Service) Delete(ctx context.Context, name string) error {
	if !ValidName(name) {
		return ErrInvalidName
	}
	if err := s.client.DeletePath(ctx, name); err != nil {
		return err
	}
	s.logger.Info("channel deleted", "channel", name)
	s.publish(events.ChannelDeleted, name)
	return nil
}

// Duplicate copies an existing channel under the first free "<name>_copy"
// style name. A name counts as free only when the server answers the probe
// with a definite not-found; transport errors abort the duplication instead
// of risking a clash.
func (s *Service) Duplicate(ctx context.Context, name string) (models.Channel, error) {
	source, err := s.Get(ctx, name)
	if err != nil {
		return models.Channel{}, err
	}

	copyName := ""
	for i := 0; i < maxDuplicateProbes; i++ {
		candidate := name + "_copy"
		if i > 0 {
			candidate = fmt.Sprintf("%s_copy_%d", name, i)
		}
		if !ValidName(candidate) {
			return models.Channel{}, ErrInvalidName
		}
		_, err := s.client.GetPath(ctx, candidate)
		if errors.Is(err, mediamtx.ErrNotFound) {
			copyName = candidate
			break
		}
		if err != nil {
			return models.Channel{}, err
		}
	}
	if copyName == "" {
		return models.Channel{}, ErrTooManyCopies
	}

	return s.Create(ctx, Params{
		Name:        copyName,
		Mode:        source.Mode,
		Source:      source.Source,
		PublishUser: source.PublishUser,
		PublishPass: source.PublishPass,
		ReadUser:    source.ReadUser,
		ReadPass:    source.ReadPass,
	})
}

func (s *Service) publish(kind events.Kind, subject string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Kind: kind, Subject: subject})
}

func channelFromPath(name string, conf mediamtx.PathConfig) models.Channel {
	channel := models.Channel{
		Name:        name,
		Source:      conf.Source,
		PublishUser: conf.PublishUser,
		PublishPass: conf.PublishPass,
		ReadUser:    conf.ReadUser,
		ReadPass:    conf.ReadPass,
		Mode:        models.ModeListener,
	}
	// Any configured source means the server dials out for the media.
	if strings.TrimSpace(conf.Source) != "" {
		channel.Mode = models.ModeCaller
	}
	return channel
}

func channelFromParams(params Params) models.Channel {
	return models.Channel{
		Name:        params.Name,
		Source:      params.Source,
		PublishUser: params.PublishUser,
		PublishPass: params.PublishPass,
		ReadUser:    params.ReadUser,
		ReadPass:    params.ReadPass,
		Mode:        params.Mode,
	}
}
