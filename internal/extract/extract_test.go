package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/llm"
	"github.com/soyeahso/hotline/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func sparksLog() []domain.Message {
	return []domain.Message{
		domain.UserMessage("There are sparks coming from the pole outside my house!"),
		domain.AssistantMessage("", domain.ToolCall{ID: "c1", Name: "electricity_emergency_info_retriever"}),
		domain.ToolMessage("c1", "Stay away from downed lines."),
		domain.AssistantMessage("Please stay away. What is your name and address?"),
		domain.UserMessage("My name is Dana Reyes, I'm at 12 Elm Street, Springfield."),
		domain.AssistantMessage("Thanks Dana. A phone number and when did it start?"),
		domain.UserMessage("Phone is 555-0142. It started about 20 minutes ago."),
	}
}

func TestTranscript(t *testing.T) {
	got := Transcript(sparksLog())
	want := "Human: There are sparks coming from the pole outside my house!\n\n" +
		"AI: Please stay away. What is your name and address?\n\n" +
		"Human: My name is Dana Reyes, I'm at 12 Elm Street, Springfield.\n\n" +
		"AI: Thanks Dana. A phone number and when did it start?\n\n" +
		"Human: Phone is 555-0142. It started about 20 minutes ago."
	assert.Equal(t, want, got)
}

func TestTranscriptEmpty(t *testing.T) {
	assert.Equal(t, "", Transcript(nil))
}

func TestUserText(t *testing.T) {
	got := UserText([]domain.Message{
		domain.UserMessage("a"),
		domain.AssistantMessage("b"),
		domain.UserMessage("c"),
	})
	assert.Equal(t, "a\nc", got)
}

func TestForDomain(t *testing.T) {
	for _, d := range domain.Specialists {
		s, ok := ForDomain(d)
		require.True(t, ok, d)
		assert.Equal(t, d, s.Domain)
		assert.NotEmpty(t, s.Required())
	}
	_, ok := ForDomain(domain.DomainTriage)
	assert.False(t, ok)

	s, _ := ForDomain(domain.DomainElectricity)
	assert.Equal(t, []string{"reporter_name", "location", "issue_type", "severity"}, s.Required())
	s, _ = ForDomain(domain.DomainMedical)
	assert.Equal(t, []string{"patient_name", "location_address", "symptoms"}, s.Required())
}

func TestJSONSchemaIsStrict(t *testing.T) {
	s, _ := ForDomain(domain.DomainElectricity)
	js := s.JSONSchema()

	assert.Equal(t, false, js["additionalProperties"])
	props := js["properties"].(map[string]any)
	assert.Len(t, props, len(s.Fields))
	assert.Len(t, js["required"], len(s.Fields))

	sev := props["severity"].(map[string]any)
	assert.Equal(t, []any{"string", "null"}, sev["type"])
	assert.Equal(t, []any{"hazardous", "major_outage", "minor", nil}, sev["enum"])
}

func TestSanitizeDropsUndeclaredAndCoerces(t *testing.T) {
	s, _ := ForDomain(domain.DomainMedical)
	user := "My father John Park is 67, he has chest pain at 4 Oak Road. Call 555 7788."
	raw := map[string]any{
		"patient_name":     "John Park",
		"patient_age":      "67",
		"patient_phone":    "555-7788",
		"location_address": "4 Oak Road",
		"symptoms":         "chest pain",
		"urgency_level":    "Severe",
		"favorite_color":   "blue",
		"allergies":        "unknown",
		"medications":      []any{"aspirin"},
	}
	draft := Sanitize(raw, s, user)

	assert.NotContains(t, draft, "favorite_color")
	assert.Len(t, draft, len(s.Fields))
	assert.Equal(t, "John Park", draft["patient_name"])
	assert.Equal(t, 67, draft["patient_age"])
	assert.Equal(t, "555-7788", draft["patient_phone"])
	assert.Equal(t, "4 Oak Road", draft["location_address"])
	assert.Equal(t, "chest pain", draft["symptoms"])
	assert.Equal(t, "severe", draft["urgency_level"])
	assert.Nil(t, draft["allergies"])
	assert.Nil(t, draft["medications"])
	assert.Nil(t, draft["contact_person"])
}

func TestSanitizeNullsHallucinations(t *testing.T) {
	s, _ := ForDomain(domain.DomainMedical)
	user := "Someone collapsed and is not breathing"
	raw := map[string]any{
		"patient_name":     "John Smith",
		"patient_age":      float64(34),
		"location_address": "221B Baker Street",
		"symptoms":         "collapsed, not breathing",
		"patient_phone":    "555-1234",
	}
	draft := Sanitize(raw, s, user)

	assert.Nil(t, draft["patient_name"])
	assert.Nil(t, draft["patient_age"])
	assert.Nil(t, draft["location_address"])
	assert.Nil(t, draft["patient_phone"])
	assert.Equal(t, "collapsed, not breathing", draft["symptoms"])
	assert.Equal(t, []string{"patient_name", "location_address"}, draft.Missing(s.Required()))
}

func TestSanitizeEnums(t *testing.T) {
	s, _ := ForDomain(domain.DomainElectricity)
	draft := Sanitize(map[string]any{
		"issue_type": "Sparks Fire Hazard",
		"severity":   "catastrophic",
	}, s, "sparks")
	assert.Equal(t, "sparks_fire_hazard", draft["issue_type"])
	assert.Nil(t, draft["severity"], "values outside the enum are nulled")
}

func TestDerivedFieldsAreEnumerated(t *testing.T) {
	for _, d := range domain.Specialists {
		s, ok := ForDomain(d)
		require.True(t, ok, d)
		for _, f := range s.Fields {
			if f.Derived {
				assert.NotEmpty(t, f.Enum, "%s.%s is inferred without a closed set of values", d, f.Name)
			}
		}
	}
}

func TestSanitizeRejectsInventedClassifications(t *testing.T) {
	police, _ := ForDomain(domain.DomainPolice)
	draft := Sanitize(map[string]any{
		"incident_type": "Alien Abduction",
		"urgency":       "Immediate",
	}, police, "someone is being taken into a van right now")
	assert.Nil(t, draft["incident_type"])
	assert.Equal(t, "immediate", draft["urgency"])
	assert.Contains(t, draft.Missing(police.Required()), "incident_type")

	fire, _ := ForDomain(domain.DomainFire)
	draft = Sanitize(map[string]any{
		"fire_type":      "building fire",
		"severity_level": "major",
	}, fire, "the flat upstairs is on fire")
	assert.Equal(t, "building_fire", draft["fire_type"])

	draft = Sanitize(map[string]any{"fire_type": "dragon fire"}, fire, "fire")
	assert.Nil(t, draft["fire_type"])
}

func TestCoerceInt(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{float64(42), 42},
		{float64(4.5), nil},
		{"17", 17},
		{" 17 ", 17},
		{"seventeen", nil},
		{true, nil},
		{nil, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, coerceInt(tt.in), "%v", tt.in)
	}
}

func TestEvidenceSupports(t *testing.T) {
	ev := newEvidence("I'm at 12 Elm St. My number is (555) 010-9999 and I'm 7 years old")
	assert.True(t, ev.supports("12 Elm St"))
	assert.True(t, ev.supports("555-010-9999"))
	assert.True(t, ev.supports(7))
	assert.True(t, ev.supports(12))
	assert.False(t, ev.supports(8))
	assert.False(t, ev.supports("Oak Avenue"))
	assert.False(t, ev.supports("the"))
}

func TestExtractorSparks(t *testing.T) {
	client := llm.NewScriptedClient(&llm.CompletionResponse{Content: `{
		"reporter_name": "Dana Reyes",
		"reporter_phone": "555-0142",
		"location": "12 Elm Street, Springfield",
		"issue_type": "sparks_fire_hazard",
		"severity": "hazardous",
		"time_started": "about 20 minutes ago",
		"description": "Sparks coming from the pole outside the house",
		"notes": "made up"
	}`})
	x := New(client, "", silentLog())
	s, _ := ForDomain(domain.DomainElectricity)

	draft, err := x.Extract(context.Background(), sparksLog(), s)
	require.NoError(t, err)

	assert.Equal(t, domain.CaseDraft{
		"reporter_name":  "Dana Reyes",
		"reporter_phone": "555-0142",
		"location":       "12 Elm Street, Springfield",
		"issue_type":     "sparks_fire_hazard",
		"severity":       "hazardous",
		"time_started":   "about 20 minutes ago",
		"description":    "Sparks coming from the pole outside the house",
	}, draft)
	assert.Empty(t, draft.Missing(s.Required()))

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].ResponseSchema)
	assert.Equal(t, "electricity_emergency_case", reqs[0].ResponseSchema.Name)
	assert.Contains(t, reqs[0].Messages[0].Content, "Human: Phone is 555-0142.")
	assert.NotContains(t, reqs[0].Messages[0].Content, "Stay away from downed lines.")
}

func TestExtractorNullForAbsent(t *testing.T) {
	client := llm.NewScriptedClient(llm.Text("```json\n{\"reporter_name\": null, \"location\": \"Main Street\", \"issue_type\": \"power_outage\"}\n```"))
	x := New(client, "", silentLog())
	s, _ := ForDomain(domain.DomainElectricity)

	draft, err := x.Extract(context.Background(), []domain.Message{domain.UserMessage("the power is out")}, s)
	require.NoError(t, err)
	for _, f := range s.Fields {
		if f.Name == "issue_type" {
			continue
		}
		assert.Nil(t, draft[f.Name], f.Name)
	}
	assert.Equal(t, "power_outage", draft["issue_type"])
	assert.Equal(t, []string{"reporter_name", "location", "severity"}, draft.Missing(s.Required()))
}

func TestExtractorErrors(t *testing.T) {
	s, _ := ForDomain(domain.DomainFire)

	_, err := New(llm.NewScriptedClient().ThenErr(errors.New("down")), "", silentLog()).
		Extract(context.Background(), nil, s)
	assert.ErrorContains(t, err, "down")

	_, err = New(llm.NewScriptedClient(llm.Text("not json")), "", silentLog()).
		Extract(context.Background(), nil, s)
	assert.Error(t, err)
}
