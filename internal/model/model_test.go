package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexIDNormalization(t *testing.T) {
	var payload struct {
		A FlexID `json:"a"`
		B FlexID `json:"b"`
		C FlexID `json:"c"`
		D FlexID `json:"d"`
	}
	raw := []byte(`{"a":"conv-7","b":7,"c":null,"d":" padded "}`)
	require.NoError(t, json.Unmarshal(raw, &payload))

	assert.Equal(t, "conv-7", payload.A.String())
	assert.Equal(t, "7", payload.B.String(), "numeric ids keep their literal form")
	assert.True(t, payload.C.IsZero())
	assert.Equal(t, "padded", payload.D.String())
}

func TestFlexIDStringAndNumberCompareEqual(t *testing.T) {
	var fromRest, fromHub FlexID
	require.NoError(t, json.Unmarshal([]byte(`"42"`), &fromRest))
	require.NoError(t, json.Unmarshal([]byte(`42`), &fromHub))
	assert.Equal(t, fromRest, fromHub)
}

func TestPendingIDs(t *testing.T) {
	id := NewPendingID()
	assert.True(t, IsPendingID(id))
	assert.False(t, IsPendingID("b9e6f3a0-0000-0000-0000-000000000000"))
	assert.NotEqual(t, id, NewPendingID())
}

func TestPreviewText(t *testing.T) {
	tests := []struct {
		name string
		conv Conversation
		want string
	}{
		{
			name: "no messages",
			conv: Conversation{},
			want: "No messages yet",
		},
		{
			name: "deleted wins over content",
			conv: Conversation{LastMessage: &LastMessagePreview{Content: "hi", Deleted: true}},
			want: DeletedMessageText,
		},
		{
			name: "image with sender",
			conv: Conversation{LastMessage: &LastMessagePreview{MediaType: MediaTypeImage, SenderName: "Alex"}},
			want: "Alex sent an image",
		},
		{
			name: "image without sender",
			conv: Conversation{LastMessage: &LastMessagePreview{MediaType: MediaTypeImage}},
			want: "Someone sent an image",
		},
		{
			name: "raw text",
			conv: Conversation{LastMessage: &LastMessagePreview{MediaType: MediaTypeText, Content: "see you at 6"}},
			want: "see you at 6",
		},
		{
			name: "empty content falls back",
			conv: Conversation{LastMessage: &LastMessagePreview{MediaType: MediaTypeText}},
			want: "No messages yet",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.conv.PreviewText())
		})
	}
}

func TestIsEditedDerivedFromTimestamps(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m := Message{CreatedAt: created, UpdatedAt: created.Add(time.Second)}
	assert.False(t, m.IsEdited(), "within tolerance is not an edit")

	m.UpdatedAt = created.Add(5 * time.Second)
	assert.True(t, m.IsEdited())

	m = Message{CreatedAt: created, Edited: true}
	assert.True(t, m.IsEdited(), "explicit flag wins")
}
