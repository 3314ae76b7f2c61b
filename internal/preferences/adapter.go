package preferences

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownEntityKind indicates an adapter lookup for an unsupported entity.
	ErrUnknownEntityKind = errors.New("preferences: unknown entity kind")
	// ErrInvalidEntityUUID indicates an empty subject entity identifier.
	ErrInvalidEntityUUID = errors.New("preferences: invalid entity uuid")
)

// FlagNames maps the four preference flags onto entity specific wire field names.
type FlagNames struct {
	MustSchedule         string
	MustNotSchedule      string
	PrefersToSchedule    string
	PrefersNotToSchedule string
}

// Encode renders flags with exactly the given type set, keyed by wire name.
func (n FlagNames) Encode(t PreferenceType) map[string]bool {
	flags := FlagsFor(t)
	return map[string]bool{
		n.MustSchedule:         flags.MustSchedule,
		n.MustNotSchedule:      flags.MustNotSchedule,
		n.PrefersToSchedule:    flags.PrefersToSchedule,
		n.PrefersNotToSchedule: flags.PrefersNotToSchedule,
	}
}

func (n FlagNames) ordered() [4]string {
	return [4]string{n.MustSchedule, n.MustNotSchedule, n.PrefersToSchedule, n.PrefersNotToSchedule}
}

// EntityAdapter captures everything that differs between preference calendars.
type EntityAdapter struct {
	Kind         string
	ResourcePath string
	Flags        FlagNames
	// ToggleOff clears a cell when it is clicked with the brush it already shows.
	ToggleOff bool
}

var (
	// TeacherAdapter drives the teacher preference calendar.
	TeacherAdapter = EntityAdapter{
		Kind:         "teacher",
		ResourcePath: "teachers",
		Flags: FlagNames{
			MustSchedule:         "mustTeach",
			MustNotSchedule:      "mustNotTeach",
			PrefersToSchedule:    "prefersToTeach",
			PrefersNotToSchedule: "prefersNotToTeach",
		},
		ToggleOff: true,
	}
	// ClassAdapter drives the class preference calendar.
	ClassAdapter = EntityAdapter{
		Kind:         "class",
		ResourcePath: "classes",
		Flags: FlagNames{
			MustSchedule:         "mustScheduleClass",
			MustNotSchedule:      "mustNotScheduleClass",
			PrefersToSchedule:    "prefersToScheduleClass",
			PrefersNotToSchedule: "prefersNotToScheduleClass",
		},
		ToggleOff: false,
	}
)

// Adapters lists the supported entity adapters.
func Adapters() []EntityAdapter {
	return []EntityAdapter{TeacherAdapter, ClassAdapter}
}

// AdapterForKind returns the adapter registered for a kind ("teacher") or resource ("teachers").
func AdapterForKind(kind string) (EntityAdapter, error) {
	normalized := strings.ToLower(strings.TrimSpace(kind))
	for _, adapter := range Adapters() {
		if adapter.Kind == normalized || adapter.ResourcePath == normalized {
			return adapter, nil
		}
	}
	return EntityAdapter{}, fmt.Errorf("%w: %q", ErrUnknownEntityKind, kind)
}

// Entity identifies the teacher or class whose preferences are edited.
type Entity struct {
	Adapter EntityAdapter
	UUID    string
}

// NewEntity validates the identifier and binds it to an adapter.
func NewEntity(adapter EntityAdapter, rawUUID string) (Entity, error) {
	trimmed := strings.TrimSpace(rawUUID)
	if trimmed == "" {
		return Entity{}, fmt.Errorf("%w: empty", ErrInvalidEntityUUID)
	}
	if adapter.ResourcePath == "" {
		return Entity{}, fmt.Errorf("%w: adapter without resource", ErrUnknownEntityKind)
	}
	return Entity{Adapter: adapter, UUID: trimmed}, nil
}

// Key returns "resource/uuid", used to scope change notifications.
func (e Entity) Key() string {
	return e.Adapter.ResourcePath + "/" + e.UUID
}
