package provider

import (
	"errors"
	"time"

	"kiln/internal/services"
)

func parseActor(raw any) (Actor, error) {
	if message := FirstString(raw, "error.message", "error", "message"); message != "" && StringAt(raw, "id") == "" {
		return Actor{}, services.Wrap(services.ErrProvider, "provider", "create actor", message, nil)
	}
	node := raw
	if data, ok := Lookup(raw, "data"); ok {
		if _, isMap := data.(map[string]any); isMap {
			node = data
		}
	}
	actor := actorFrom(node)
	if actor.ID == "" {
		return Actor{}, services.Wrap(services.ErrProvider, "provider", "create actor",
			"provider did not return an actor identifier", errors.New("missing id"))
	}
	return actor, nil
}

func parseActorList(raw any) []Actor {
	var items []any
	for _, path := range []string{"data", "characters", "items"} {
		if value, ok := Lookup(raw, path); ok {
			if list, ok := value.([]any); ok {
				items = list
				break
			}
		}
	}
	if items == nil {
		if list, ok := raw.([]any); ok {
			items = list
		}
	}
	actors := make([]Actor, 0, len(items))
	for _, item := range items {
		actor := actorFrom(item)
		if actor.ID == "" {
			continue
		}
		actors = append(actors, actor)
	}
	return actors
}

func actorFrom(node any) Actor {
	actor := Actor{
		ID:         FirstString(node, "id", "character_id"),
		Name:       FirstString(node, "name", "display_name"),
		Username:   FirstString(node, "username", "handle"),
		ProfileURL: FirstString(node, "profile_url", "profile_picture_url", "url"),
	}
	if actor.Name == "" {
		actor.Name = actor.Username
	}
	if ts, err := time.Parse(time.RFC3339, StringAt(node, "created_at")); err == nil {
		actor.CreatedAt = ts
	} else if seconds, ok := NumberAt(node, "created_at"); ok && seconds > 0 {
		actor.CreatedAt = time.Unix(int64(seconds), 0).UTC()
	}
	return actor
}
