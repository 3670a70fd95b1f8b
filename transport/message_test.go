package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	call, err := ParseMessage([]byte(`[2,"19","RemoteStartTransaction",{"idTag":"ABC"}]`))
	require.NoError(t, err)
	assert.Equal(t, CallTypeRequest, call.TypeId)
	assert.Equal(t, "19", call.UniqueId)
	assert.Equal(t, "RemoteStartTransaction", call.Action)
	assert.JSONEq(t, `{"idTag":"ABC"}`, string(call.Payload))

	result, err := ParseMessage([]byte(`[3,"4",{"status":"Accepted"}]`))
	require.NoError(t, err)
	assert.Equal(t, CallTypeResult, result.TypeId)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(result.Payload))

	callError, err := ParseMessage([]byte(`[4,"4","FormationViolation","bad payload",{"field":"idTag"}]`))
	require.NoError(t, err)
	assert.Equal(t, FormationViolation, callError.ErrorCode)
	assert.Equal(t, "bad payload", callError.ErrorDescription)
}

func TestCallResult_EmptyPayloadIsObject(t *testing.T) {
	data, err := json.Marshal(&CallResult{TypeId: CallTypeResult, UniqueId: "3"})
	require.NoError(t, err)
	assert.Equal(t, `[3,"3",{}]`, string(data))
}
