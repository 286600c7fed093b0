package clanalytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidEventType(t *testing.T) {
	for _, valid := range []string{"", "click", "custom", "video_play", "a1"} {
		assert.True(t, ValidEventType(valid), valid)
	}
	for _, invalid := range []string{"Click", "1click", "video-play", "with space", "abcdefghijklmnopqrstuvwxyz0123456789"} {
		assert.False(t, ValidEventType(invalid), invalid)
	}
}

func TestParseEventPayload(t *testing.T) {
	tests := []struct {
		name       string
		eventType  string
		properties map[string]any
		wantType   EventType
		wantField  string
	}{
		{"vide devient custom", "", nil, EventCustom, ""},
		{"custom libre", "custom", map[string]any{"anything": 1}, EventCustom, ""},
		{"click", "click", map[string]any{"element": "#cta"}, EventClick, ""},
		{"click sans élément", "click", map[string]any{}, "", "properties.element"},
		{"click élément non chaîne", "click", map[string]any{"element": 3}, "", "properties.element"},
		{"outbound", "outbound", map[string]any{"url": "https://github.com"}, EventOutbound, ""},
		{"outbound sans url", "outbound", map[string]any{"url": "  "}, "", "properties.url"},
		{"download", "download", map[string]any{"file": "cv.pdf"}, EventDownload, ""},
		{"interaction sans chemin", "interaction", map[string]any{"element": "#a"}, "", "properties.path"},
		{"type libre", "video_play", nil, EventType("video_play"), ""},
		{"format invalide", "Video", nil, "", "eventType"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := ParseEventPayload(tt.eventType, tt.properties)
			if tt.wantField != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.wantField, verr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, payload.Type)
		})
	}
}

func TestEventPayloadKnown(t *testing.T) {
	assert.True(t, EventPayload{Type: EventClick}.Known())
	assert.False(t, EventPayload{Type: EventCustom}.Known())
	assert.False(t, EventPayload{Type: "video_play"}.Known())
}

func TestEventPayloadJSON(t *testing.T) {
	data, err := EventPayload{Type: EventCustom}.JSON()
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = EventPayload{Type: EventClick, Properties: map[string]any{"element": "#cta"}}.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"element":"#cta"}`, string(data))

	_, err = EventPayload{Type: EventCustom, Properties: map[string]any{"bad": make(chan int)}}.JSON()
	assert.True(t, IsValidation(err))
}

func TestEventTypeLabel(t *testing.T) {
	assert.Equal(t, "click", eventTypeLabel(EventPayload{Type: EventClick}))
	assert.Equal(t, "custom", eventTypeLabel(EventPayload{Type: EventCustom}))
	assert.Equal(t, "other", eventTypeLabel(EventPayload{Type: "video_play"}))
}
