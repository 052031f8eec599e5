package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	f, err := NewRequest("r1", "turn.submit", turnParams{Domain: "fire", Message: "smoke in the hallway"})
	require.NoError(t, err)
	assert.Equal(t, FrameTypeRequest, f.Type)
	assert.Equal(t, "r1", f.ID)
	assert.Equal(t, "turn.submit", f.Method)
	assert.JSONEq(t, `{"domain":"fire","message":"smoke in the hallway"}`, string(f.Params))
}

func TestNewResponse(t *testing.T) {
	f, err := NewResponse("r1", map[string]string{"reply": "Leave the building."})
	require.NoError(t, err)
	assert.Equal(t, FrameTypeResponse, f.Type)
	require.NotNil(t, f.OK)
	assert.True(t, *f.OK)
	assert.Nil(t, f.Error)
	assert.JSONEq(t, `{"reply":"Leave the building."}`, string(f.Payload))
}

func TestNewErrorResponse(t *testing.T) {
	f := NewErrorResponse("r1", ErrorShape{Code: "retry", Message: "overloaded", Retryable: true})
	require.NotNil(t, f.OK)
	assert.False(t, *f.OK)
	require.NotNil(t, f.Error)
	assert.Equal(t, "retry", f.Error.Code)
	assert.True(t, f.Error.Retryable)

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"retryable":true`)
	assert.NotContains(t, string(data), "retryAfterMs")
}

func TestNewEvent(t *testing.T) {
	f, err := NewEvent("case.event", map[string]any{"event": "case_submitted"}, 7)
	require.NoError(t, err)
	assert.Equal(t, FrameTypeEvent, f.Type)
	assert.Equal(t, "case.event", f.Event)
	assert.Equal(t, int64(7), f.Seq)
	assert.Empty(t, f.ID)
}

func TestConnectParams_UserBinding(t *testing.T) {
	raw := `{"minProtocol":1,"maxProtocol":1,
		"client":{"id":"kiosk","version":"1.0.0","platform":"web","mode":"app","userId":"u42"},
		"auth":{"token":"secret"}}`

	var p ConnectParams
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, "u42", p.Client.UserID)
	require.NotNil(t, p.Auth)
	assert.Equal(t, "secret", p.Auth.Token)

	anon, err := json.Marshal(ConnectParams{Client: ClientInfo{ID: "c", Mode: "operator"}})
	require.NoError(t, err)
	assert.NotContains(t, string(anon), `"auth"`)
	assert.NotContains(t, string(anon), `"userId"`)
}

func TestConnectParamsSupports(t *testing.T) {
	assert.True(t, ConnectParams{}.supports(1))
	assert.True(t, ConnectParams{MinProtocol: 1, MaxProtocol: 1}.supports(1))
	assert.True(t, ConnectParams{MinProtocol: 1}.supports(3))
	assert.False(t, ConnectParams{MinProtocol: 2, MaxProtocol: 3}.supports(1))
	assert.False(t, ConnectParams{MaxProtocol: 1}.supports(2))
}
