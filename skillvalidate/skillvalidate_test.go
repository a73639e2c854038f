package skillvalidate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/a2a/types"
)

func skillWithSchema(t *testing.T, id, schema string) *types.Skill {
	t.Helper()
	return &types.Skill{ID: id, PayloadSchema: json.RawMessage(schema)}
}

func TestValidateMessageRejectsPayloadViolatingSchema(t *testing.T) {
	v, err := New([]*types.Skill{
		skillWithSchema(t, "book-flight", `{
			"type": "object",
			"required": ["destination"],
			"properties": {"destination": {"type": "string"}}
		}`),
	})
	require.NoError(t, err)

	msg := &types.Message{
		Metadata: map[string]any{"skillId": "book-flight"},
		Parts:    []*types.Part{{Type: "data", Data: json.RawMessage(`{}`)}},
	}
	err = v.ValidateMessage(msg)
	require.Error(t, err)
}

func TestValidateMessageAcceptsConformingPayload(t *testing.T) {
	v, err := New([]*types.Skill{
		skillWithSchema(t, "book-flight", `{
			"type": "object",
			"required": ["destination"],
			"properties": {"destination": {"type": "string"}}
		}`),
	})
	require.NoError(t, err)

	msg := &types.Message{
		Metadata: map[string]any{"skillId": "book-flight"},
		Parts:    []*types.Part{{Type: "data", Data: json.RawMessage(`{"destination":"SFO"}`)}},
	}
	require.NoError(t, v.ValidateMessage(msg))
}

func TestValidateMessageSkipsUnknownSkillOrMissingMetadata(t *testing.T) {
	v, err := New(nil)
	require.NoError(t, err)
	require.NoError(t, v.ValidateMessage(&types.Message{}))

	var nilValidator *Validator
	require.NoError(t, nilValidator.ValidateMessage(&types.Message{
		Metadata: map[string]any{"skillId": "anything"},
	}))
}
