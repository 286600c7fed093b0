package clanalytics

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/datatypes"
)

type EventType string

const (
	EventCustom      EventType = "custom"
	EventClick       EventType = "click"
	EventOutbound    EventType = "outbound"
	EventDownload    EventType = "download"
	EventInteraction EventType = "interaction"
)

// propriétés obligatoires (chaînes non vides) par type connu
var requiredProperties = map[EventType][]string{
	EventClick:       {"element"},
	EventOutbound:    {"url"},
	EventDownload:    {"file"},
	EventInteraction: {"element", "path"},
}

var eventTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// EventPayload est un événement validé: un type connu avec ses propriétés
// obligatoires, ou une variante libre dont les propriétés sont quelconques
type EventPayload struct {
	Type       EventType
	Properties map[string]any
}

// Known indique si le type a un schéma de propriétés
func (p EventPayload) Known() bool {
	_, ok := requiredProperties[p.Type]
	return ok
}

// ValidEventType accepte les noms de type en snake_case minuscule, vide compris
func ValidEventType(eventType string) bool {
	return eventType == "" || eventTypePattern.MatchString(eventType)
}

// ParseEventPayload valide le type et les propriétés d'un événement
func ParseEventPayload(eventType string, properties map[string]any) (EventPayload, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		eventType = string(EventCustom)
	}
	if !eventTypePattern.MatchString(eventType) {
		return EventPayload{}, &ValidationError{Field: "eventType", Reason: "format invalide"}
	}

	payload := EventPayload{Type: EventType(eventType), Properties: properties}
	for _, key := range requiredProperties[payload.Type] {
		value, ok := properties[key].(string)
		if !ok || strings.TrimSpace(value) == "" {
			return EventPayload{}, &ValidationError{
				Field:  "properties." + key,
				Reason: fmt.Sprintf("requis pour un événement %s", payload.Type),
			}
		}
	}
	return payload, nil
}

// JSON sérialise les propriétés, nil si l'événement n'en porte pas
func (p EventPayload) JSON() (datatypes.JSON, error) {
	if len(p.Properties) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(p.Properties)
	if err != nil {
		return nil, &ValidationError{Field: "properties", Reason: err.Error()}
	}
	return datatypes.JSON(data), nil
}
