package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalEnvelope(t *testing.T) {
	data, err := Marshal(MsgSelectModel, SelectModelPayload{Model: "llama3"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"select_model","payload":{"model":"llama3"}}`, string(data))

	data, err = Marshal(MsgListModels, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"list_models"}`, string(data))
}

func TestUnmarshalUtterance(t *testing.T) {
	msgType, raw, err := Unmarshal([]byte(`{"type":"utterance","payload":{"model":"m","language":"ar","format":"webm","audio":"AQID"}}`))
	require.NoError(t, err)
	assert.Equal(t, MsgUtterance, msgType)

	p, err := UnmarshalPayload[UtterancePayload](raw)
	require.NoError(t, err)
	assert.Equal(t, "m", p.Model)
	assert.Equal(t, "ar", p.Language)
	assert.Equal(t, "webm", p.Format)
	assert.Equal(t, []byte{1, 2, 3}, p.Audio)
}

func TestUnmarshalRejectsMissingType(t *testing.T) {
	_, _, err := Unmarshal([]byte(`{"payload":{}}`))
	assert.Error(t, err)

	_, _, err = Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}

func TestUnmarshalPayloadEmpty(t *testing.T) {
	p, err := UnmarshalPayload[TextPayload](nil)
	require.NoError(t, err)
	assert.Equal(t, TextPayload{}, p)
}

func TestMessagePayloadFlattensChatMessage(t *testing.T) {
	data, err := Marshal(MsgMessage, MessagePayload{
		Model:       "m",
		ChatMessage: ChatMessage{Role: "assistant", Content: "مرحبا", Direction: "rtl"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message","payload":{"model":"m","role":"assistant","content":"مرحبا","direction":"rtl"}}`, string(data))
}
