package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Thread tests ---

func TestThreadID(t *testing.T) {
	assert.Equal(t, "electricity_u1", ThreadID(DomainElectricity, "u1"))
	assert.Equal(t, "triage_u1", ThreadID(DomainTriage, "u1"))
	assert.Equal(t, "followup_c9_u1", FollowupThreadID("c9", "u1"))
}

func TestNewThread(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	th := NewThread("police_user_4", DomainPolice, created)
	assert.Equal(t, Thread{ID: "police_user_4", Domain: DomainPolice, UserID: "user_4", CreatedAt: created}, th)

	th = NewThread(FollowupThreadID("0b9e1c7a-4d2f-4a4e-8c3b-1f2e3d4c5b6a", "u1"), DomainFollowup, created)
	assert.Equal(t, "u1", th.UserID)

	// Ids that do not follow the domain layout keep an empty user.
	assert.Empty(t, NewThread("legacy-thread", DomainFire, created).UserID)
	assert.Empty(t, NewThread("followup_nocase", DomainFollowup, created).UserID)
}

func TestParseDomain(t *testing.T) {
	tests := []struct {
		in      string
		want    Domain
		wantErr bool
	}{
		{in: "Medical", want: DomainMedical},
		{in: "police", want: DomainPolice},
		{in: " ELECTRICITY ", want: DomainElectricity},
		{in: "followup", want: DomainFollowup},
		{in: "plumbing", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDomain(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsSpecialist(t *testing.T) {
	for _, d := range Specialists {
		assert.True(t, d.IsSpecialist(), d)
	}
	assert.False(t, DomainTriage.IsSpecialist())
	assert.False(t, DomainFollowup.IsSpecialist())
}

// --- Message log tests ---

func TestValidateLog(t *testing.T) {
	call := func(id string) ToolCall { return ToolCall{ID: id, Name: "retrieve"} }

	tests := []struct {
		name    string
		msgs    []Message
		wantErr string
	}{
		{
			name: "plain exchange",
			msgs: []Message{UserMessage("hi"), AssistantMessage("hello")},
		},
		{
			name: "tool block",
			msgs: []Message{
				UserMessage("sparks"),
				AssistantMessage("", call("a"), call("b")),
				ToolMessage("a", "r1"),
				ToolMessage("b", "r2"),
				AssistantMessage("stay clear"),
			},
		},
		{
			name:    "dangling tool response",
			msgs:    []Message{UserMessage("hi"), ToolMessage("x", "r")},
			wantErr: "dangling",
		},
		{
			name: "tool answering an older assistant",
			msgs: []Message{
				AssistantMessage("", call("a")),
				ToolMessage("a", "r"),
				UserMessage("more"),
				ToolMessage("a", "again"),
			},
			wantErr: "dangling",
		},
		{
			name:    "duplicate call ids",
			msgs:    []Message{AssistantMessage("", call("a"), call("a"))},
			wantErr: "duplicate",
		},
		{
			name:    "answered twice",
			msgs:    []Message{AssistantMessage("", call("a")), ToolMessage("a", "1"), ToolMessage("a", "2")},
			wantErr: "dangling",
		},
		{
			name:    "unknown role",
			msgs:    []Message{{Role: "system", Content: "x"}},
			wantErr: "unknown role",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLog(tt.msgs)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestUserTurns(t *testing.T) {
	msgs := []Message{UserMessage("a"), AssistantMessage("b"), UserMessage("c")}
	assert.Equal(t, 2, UserTurns(msgs))
	assert.Equal(t, 0, UserTurns(nil))
}

func TestMessageJSON_OmitsEmpty(t *testing.T) {
	data, err := json.Marshal(UserMessage("hello"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hello"}`, string(data))
}

// --- Checkpoint tests ---

func TestKeepLast(t *testing.T) {
	assert.Equal(t, "Police", KeepLast("Medical", "Police"))
	assert.Equal(t, "Medical", KeepLast("Medical", nil))
	assert.Equal(t, "Medical", KeepLast("Medical", ""))
	assert.Equal(t, "Police", KeepLast(nil, "Police"))
	assert.Nil(t, KeepLast(nil, nil))
}

func TestMergeState(t *testing.T) {
	state := map[string]any{StateEmergencyType: "Medical", "other": 1}

	MergeState(state, map[string]any{StateEmergencyType: nil})
	assert.Equal(t, "Medical", state[StateEmergencyType])

	MergeState(state, map[string]any{StateEmergencyType: "Electricity", "new": "x"})
	assert.Equal(t, "Electricity", state[StateEmergencyType])
	assert.Equal(t, "x", state["new"])
	assert.Equal(t, 1, state["other"])

	fresh := MergeState(nil, map[string]any{"k": "v", "gone": nil})
	assert.Equal(t, map[string]any{"k": "v"}, fresh)
}

func TestCheckpointCloneIsolation(t *testing.T) {
	cp := NewCheckpoint("fire_u1", DomainFire)
	cp.Messages = append(cp.Messages, AssistantMessage("", ToolCall{ID: "a", Name: "submit_case"}))
	cp.ExtraState["k"] = "v"

	clone := cp.Clone()
	clone.Messages = append(clone.Messages, ToolMessage("a", "ok"))
	clone.Messages[0].ToolCalls[0].Name = "changed"
	clone.ExtraState["k"] = "w"

	assert.Len(t, cp.Messages, 1)
	assert.Equal(t, "submit_case", cp.Messages[0].ToolCalls[0].Name)
	assert.Equal(t, "v", cp.ExtraState["k"])
}

func TestCheckpointValidate(t *testing.T) {
	cp := NewCheckpoint("", DomainFire)
	assert.Error(t, cp.Validate())

	cp.ThreadID = "fire_u1"
	assert.Error(t, cp.Validate(), "version 0 is never committed")

	cp.Version = 1
	cp.Messages = []Message{UserMessage("hi")}
	assert.NoError(t, cp.Validate())

	cp.Messages = append(cp.Messages, ToolMessage("nope", "x"))
	assert.Error(t, cp.Validate())
}

func TestCheckpointAccessors(t *testing.T) {
	var cp Checkpoint
	require.NoError(t, json.Unmarshal([]byte(`{
		"threadId": "fire_u1",
		"extraState": {"submission_seq": 2, "emergency_type": "Medical",
			"last_submission": {"caseId": "c1", "userTurn": 3}}
	}`), &cp))

	assert.Equal(t, int64(2), cp.Int(StateSubmissionSeq))
	assert.Equal(t, "Medical", cp.String(StateEmergencyType))
	assert.Equal(t, int64(0), cp.Int("missing"))
	assert.Equal(t, "", cp.String(StateSubmissionSeq))

	var last struct {
		CaseID   string `json:"caseId"`
		UserTurn int    `json:"userTurn"`
	}
	ok, err := cp.Decode(StateLastSubmission, &last)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c1", last.CaseID)
	assert.Equal(t, 3, last.UserTurn)

	ok, err = cp.Decode("missing", &last)
	require.NoError(t, err)
	assert.False(t, ok)
}

// --- Case tests ---

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to CaseStatus
		want     bool
	}{
		{StatusNotAssigned, StatusInProgress, true},
		{StatusNotAssigned, StatusResolved, true},
		{StatusInProgress, StatusRequestedForResolution, true},
		{StatusResolved, StatusResolved, true},
		{StatusResolved, StatusInProgress, false},
		{StatusRequestedForResolution, StatusNotAssigned, false},
		{"BOGUS", StatusResolved, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("IN_PROGRESS")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, st)

	_, err = ParseStatus("in_progress")
	assert.Error(t, err)
}

func TestCaseDraftMissing(t *testing.T) {
	d := CaseDraft{
		"reporter_name": "Ana",
		"location":      "",
		"severity":      nil,
		"issue_type":    "sparks_fire_hazard",
	}
	assert.Equal(t,
		[]string{"location", "severity", "reporter_phone"},
		d.Missing([]string{"reporter_name", "location", "severity", "issue_type", "reporter_phone"}))
	assert.Empty(t, d.Missing([]string{"reporter_name"}))
}
