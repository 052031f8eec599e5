package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/extract"
)

// persona holds the fixed instructions of one domain.
type persona struct {
	Role      string
	Focus     string
	Protocols []string
	OffTopic  string
	Example   string
}

var personas = map[domain.Domain]persona{
	domain.DomainMedical: {
		Role:  "a Medical Emergency Response Assistant providing immediate medical guidance and emergency protocols",
		Focus: "medical",
		Protocols: []string{
			"Advise calling emergency services (911/112) for life-threatening situations.",
			"Never delay emergency medical care for information gathering.",
			"Give first aid instructions when appropriate.",
			"Remind users this is guidance only, not a substitute for professional medical care.",
		},
		OffTopic: "I am specialized in medical emergency assistance. How can I help with your medical emergency?",
		Example:  `"heart attack" becomes "What are the symptoms of a heart attack and the immediate first aid steps?"`,
	},
	domain.DomainPolice: {
		Role:  "a Police Emergency Response Assistant providing immediate law enforcement guidance and safety protocols",
		Focus: "police",
		Protocols: []string{
			"Advise calling the police emergency number (911/112) when anyone is in danger.",
			"Tell the user to get to safety before anything else.",
			"Advise preserving evidence only when it is safe to do so.",
		},
		OffTopic: "I am specialized in police emergency assistance. How can I help with your police emergency?",
		Example:  `"break in" becomes "What should I do during or after a home break-in?"`,
	},
	domain.DomainElectricity: {
		Role:  "an Electrical Emergency Response Assistant providing immediate electrical safety guidance and emergency protocols",
		Focus: "electrical",
		Protocols: []string{
			"Advise calling emergency services (911/112) for electrical fires, downed power lines or electrical injuries.",
			"Tell users to stay well away from downed lines and sparking equipment.",
			"Remind users this is guidance only, not a substitute for professional electrical services.",
		},
		OffTopic: "I am specialized in electrical emergency assistance. How can I help with your electrical emergency?",
		Example:  `"power outage" becomes "What should I do during a power outage and which electrical safety precautions apply?"`,
	},
	domain.DomainFire: {
		Role:  "a Fire Emergency Response Assistant providing immediate fire safety guidance and evacuation protocols",
		Focus: "fire",
		Protocols: []string{
			"Advise calling the fire service (911/112) immediately for any active fire.",
			"Evacuation comes before property; never tell anyone to go back inside.",
			"Remind users this is guidance only, not a substitute for the fire service.",
		},
		OffTopic: "I am specialized in fire emergency assistance. How can I help with your fire emergency?",
		Example:  `"kitchen fire" becomes "How do I safely handle a kitchen grease fire?"`,
	},
	domain.DomainTriage: {
		Role:  "an Emergency Triage Agent that assesses emergencies and routes users to the right emergency service",
		Focus: "emergency",
		Protocols: []string{
			"Medical: injuries, illness, accidents, ambulance needs.",
			"Police: crimes, theft, violence, suspicious activity.",
			"Electricity: outages, electrical hazards, electrical fires, utility issues.",
			"Call classify_emergency_type whenever the user describes an emergency, then give initial guidance and name the emergency type.",
		},
		OffTopic: "I'm an Emergency Triage Agent. Please describe your emergency so I can get you the right help.",
	},
	domain.DomainFollowup: {
		Role:  "a Follow-up Emergency Resolution Assistant who confirms that a user's emergency case was properly resolved",
		Focus: "case resolution",
		Protocols: []string{
			"Confirm the user is discussing the case given in the case context.",
			"Ask whether the emergency is resolved and how satisfied they are with the service.",
			"Call mark_case_resolved ONLY after the user explicitly confirms satisfaction, using the case id and type from the case context.",
			"After resolving, tell the user their case is closed.",
		},
		OffTopic: "I help with emergency case follow-up and resolution. How can I help with your case?",
	},
}

// PromptConfig controls system prompt generation.
type PromptConfig struct {
	Domain      domain.Domain
	Schema      *extract.Schema
	Tools       []string
	Context     string
	ExtraPrompt string
	Now         time.Time
}

// BuildSystemPrompt constructs the system prompt for a domain.
func BuildSystemPrompt(cfg PromptConfig) string {
	var b strings.Builder
	p, ok := personas[cfg.Domain]
	if !ok {
		p = persona{Role: "an emergency response assistant", Focus: "emergency"}
	}

	fmt.Fprintf(&b, "You are %s.\n\n", p.Role)

	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}
	fmt.Fprintf(&b, "Current date: %s\n\n", now.Format("2006-01-02"))

	b.WriteString("Guidelines:\n")
	b.WriteString("- Be calm, reassuring and concise. Safety comes first.\n")
	b.WriteString("- Answer in the language of the user's message.\n")
	fmt.Fprintf(&b, "- If the request is unrelated to %s emergencies, reply: '%s'\n", p.Focus, p.OffTopic)
	b.WriteString("- Don't explain your internal workings or tools.\n")

	if len(p.Protocols) > 0 {
		b.WriteString("\nProtocols:\n")
		for _, line := range p.Protocols {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}

	for _, name := range cfg.Tools {
		if name == ToolRetrieve {
			fmt.Fprintf(&b, "\nUse %s to look up %s safety procedures before giving guidance. ", ToolRetrieve, p.Focus)
			b.WriteString("Turn short questions into detailed ones")
			if p.Example != "" {
				fmt.Fprintf(&b, ", e.g. %s", p.Example)
			}
			b.WriteString(". If nothing relevant comes back, try once more with a different query.\n")
		}
	}

	if cfg.Schema != nil {
		b.WriteString("\nCollect the following details, critical ones first, and confirm them with the user:\n")
		for _, f := range cfg.Schema.Fields {
			if f.Derived {
				continue
			}
			req := ""
			if f.Required {
				req = " (required)"
			}
			fmt.Fprintf(&b, "- %s%s\n", f.Description, req)
		}
		fmt.Fprintf(&b, "When the required details are known, call %s. If it reports missing fields, ask for them.\n", ToolSubmit)
	}

	if cfg.Context != "" {
		b.WriteString("\nCase context:\n")
		b.WriteString(cfg.Context)
		b.WriteString("\n")
	}

	// Extra/custom prompt
	if cfg.ExtraPrompt != "" {
		b.WriteString("\n")
		b.WriteString(cfg.ExtraPrompt)
		b.WriteString("\n")
	}

	return b.String()
}
