package event

import (
	"context"
	"encoding/json"
)

// Watch subscribes userID to an event's change stream. The first update is
// always a full snapshot; every subsequent update is an incremental change
// in commit order. Subscribing before taking the snapshot means a mutation
// committed in between is delivered twice, never missed (at-least-once).
func (s *Service) Watch(ctx context.Context, eventID, userID string) (*Subscription, error) {
	inner, err := s.channel.Subscribe(ctx, eventID)
	if err != nil {
		return nil, err
	}
	view, err := s.GetView(ctx, eventID, userID)
	if err != nil {
		inner.Unsubscribe()
		return nil, err
	}
	snapshot, err := toPayload(view)
	if err != nil {
		inner.Unsubscribe()
		return nil, err
	}

	out := &Subscription{
		updates: make(chan Update, 64),
		stop:    inner.Unsubscribe,
	}
	go func() {
		defer close(out.updates)
		select {
		case out.updates <- Update{Type: UpdateSnapshot, EventID: eventID, Payload: snapshot}:
		case <-ctx.Done():
			return
		}
		for u := range inner.Updates() {
			select {
			case out.updates <- u:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func toPayload(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errf(KindInvalid, "encode snapshot: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errf(KindInvalid, "encode snapshot: %v", err)
	}
	return m, nil
}
