package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/totegamma/restoration-forms/internal/domain"
)

const channelPrefix = "forms:"

type SignalService struct {
	rdb *redis.Client
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

func channelsFor(forms []string) []string {
	channels := make([]string, 0, len(forms))
	for _, form := range forms {
		if form == "" {
			continue
		}
		channel := channelPrefix + form
		if !slices.Contains(channels, channel) {
			channels = append(channels, channel)
		}
	}
	return channels
}

func (s *SignalService) Publish(ctx context.Context, event domain.FormSynced) error {

	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, channelPrefix+event.Form, jsonstr).Err()
	if err != nil {
		return err

	}

	return nil
}

// Realtime forwards sync events of the subscribed forms to output until ctx ends or input is
// closed. Every value received on input replaces the subscribed forms. output is closed on return.
func (s *SignalService) Realtime(ctx context.Context, forms []string, input <-chan []string, output chan<- domain.FormSynced) {
	defer close(output)

	current := channelsFor(forms)
	pubsub := s.rdb.Subscribe(ctx, current...)
	defer pubsub.Close()
	messages := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-input:
			if !ok {
				return
			}
			channels := channelsFor(next)
			if len(current) > 0 {
				if err := pubsub.Unsubscribe(ctx, current...); err != nil {
					slog.ErrorContext(ctx, "failed to unsubscribe", slog.String("error", err.Error()), slog.String("module", "signal"))
					return
				}
			}
			if len(channels) > 0 {
				if err := pubsub.Subscribe(ctx, channels...); err != nil {
					slog.ErrorContext(ctx, "failed to subscribe", slog.String("error", err.Error()), slog.String("module", "signal"))
					return
				}
			}
			current = channels
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event domain.FormSynced
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.WarnContext(ctx, "dropping malformed sync event", slog.String("error", err.Error()), slog.String("module", "signal"))
				continue
			}
			select {
			case output <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}
