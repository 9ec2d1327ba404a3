package activity

import (
	"strings"
	"time"
)

// Verbs and object types used by the state builders.
const (
	VerbStateChanged = "state.changed"
	VerbStateDeleted = "state.deleted"
	VerbStateMerged  = "state.merged"

	ObjectTypeState = "state"
	ObjectTypePatch = "state.patch"
)

// StateEventInput describes the common fields of state mutation events.
type StateEventInput struct {
	ActorID        string
	UserID         string
	TenantID       string
	ObjectID       string
	StateID        string
	Channel        string
	DefinitionCode string
	Recipients     []string
	Metadata       map[string]any
	Path           string
	Keys           []string
	OldValue       any
	NewValue       any
	OccurredAt     time.Time
}

// BuildStateChangedEvent describes a value written at Path.
func BuildStateChangedEvent(input StateEventInput) Event {
	return buildStateEvent(VerbStateChanged, ObjectTypeState, input)
}

// BuildStateDeletedEvent describes a value removed from Path.
func BuildStateDeletedEvent(input StateEventInput) Event {
	return buildStateEvent(VerbStateDeleted, ObjectTypeState, input)
}

// BuildStateMergedEvent describes a patch merged into the root. Keys lists
// the top-level keys the patch touched.
func BuildStateMergedEvent(input StateEventInput) Event {
	return buildStateEvent(VerbStateMerged, ObjectTypePatch, input)
}

func buildStateEvent(verb, objectType string, input StateEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if input.Path != "" {
		metadata = ensureMetadata(metadata)
		metadata["path"] = input.Path
	}
	if input.StateID != "" {
		metadata = ensureMetadata(metadata)
		metadata["state_id"] = input.StateID
	}
	if len(input.Keys) > 0 {
		metadata = ensureMetadata(metadata)
		metadata["keys"] = append([]string{}, input.Keys...)
	}
	if input.OldValue != nil {
		metadata = ensureMetadata(metadata)
		metadata["old_value"] = input.OldValue
	}
	if input.NewValue != nil {
		metadata = ensureMetadata(metadata)
		metadata["new_value"] = input.NewValue
	}

	recipients := input.Recipients
	if len(recipients) > 0 {
		recipients = append([]string{}, input.Recipients...)
	}

	objectID := firstNonEmpty(input.ObjectID, input.Path, input.StateID, objectType)

	return Event{
		Verb:           verb,
		ActorID:        strings.TrimSpace(input.ActorID),
		UserID:         strings.TrimSpace(input.UserID),
		TenantID:       strings.TrimSpace(input.TenantID),
		ObjectType:     objectType,
		ObjectID:       objectID,
		Channel:        strings.TrimSpace(input.Channel),
		DefinitionCode: strings.TrimSpace(input.DefinitionCode),
		Recipients:     recipients,
		Metadata:       metadata,
		OccurredAt:     input.OccurredAt,
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
