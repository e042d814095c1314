package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromMapRoundTrip(t *testing.T) {
	v := FromMap(map[string]any{"text": "hello", "channel": "websocket"})
	assert.Equal(t, "hello", v.String("text"))
	assert.Equal(t, "websocket", v.String("channel"))
}

func TestSetIsImmutable(t *testing.T) {
	v := Empty()
	v2 := v.Set("milestone", "14d")
	assert.Equal(t, "", v.String("milestone"))
	assert.Equal(t, "14d", v2.String("milestone"))
}

func TestJSONMarshalling(t *testing.T) {
	v := FromMap(map[string]any{"a": 1})
	b, err := json.Marshal(v)
	assert.NoError(t, err)

	var v2 Value
	assert.NoError(t, json.Unmarshal(b, &v2))
	assert.EqualValues(t, 1, v2.Int("a"))
}

func TestEmptyPayloadIsValidObject(t *testing.T) {
	v := FromJSON(nil)
	b, err := json.Marshal(v)
	assert.NoError(t, err)
	assert.Equal(t, "{}", string(b))
}
