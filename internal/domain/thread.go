package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Domain names a specialist or meta conversation category.
type Domain string

const (
	DomainMedical     Domain = "Medical"
	DomainPolice      Domain = "Police"
	DomainElectricity Domain = "Electricity"
	DomainFire        Domain = "Fire"
	DomainTriage      Domain = "Triage"
	DomainFollowup    Domain = "Followup"
)

// Specialists are the domains that collect facts and submit cases.
var Specialists = []Domain{DomainMedical, DomainPolice, DomainElectricity, DomainFire}

// AllDomains lists every domain an engine can be configured for.
var AllDomains = []Domain{
	DomainMedical, DomainPolice, DomainElectricity, DomainFire, DomainTriage, DomainFollowup,
}

// ParseDomain resolves a case-insensitive domain name.
func ParseDomain(s string) (Domain, error) {
	for _, d := range AllDomains {
		if strings.EqualFold(string(d), strings.TrimSpace(s)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown domain %q", s)
}

// Slug is the lowercase form used in thread ids, table names and routes.
func (d Domain) Slug() string { return strings.ToLower(string(d)) }

// IsSpecialist reports whether the domain files cases.
func (d Domain) IsSpecialist() bool {
	switch d {
	case DomainMedical, DomainPolice, DomainElectricity, DomainFire:
		return true
	}
	return false
}

// Thread identifies one ongoing conversation.
type Thread struct {
	ID        string    `json:"threadId"`
	Domain    Domain    `json:"domain"`
	UserID    string    `json:"userId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ThreadLister is implemented by checkpoint stores that can enumerate
// their live threads.
type ThreadLister interface {
	// Threads returns live threads, most recently active first. An empty
	// domain lists every domain.
	Threads(ctx context.Context, d Domain) ([]Thread, error)
}

// NewThread describes a thread from its stored id. The user id is recovered
// from the id layout ThreadID and FollowupThreadID produce.
func NewThread(id string, d Domain, createdAt time.Time) Thread {
	t := Thread{ID: id, Domain: d, CreatedAt: createdAt}
	rest, ok := strings.CutPrefix(id, d.Slug()+"_")
	if !ok {
		return t
	}
	if d == DomainFollowup {
		// Case ids are UUIDs and never contain an underscore.
		if _, user, found := strings.Cut(rest, "_"); found {
			t.UserID = user
		}
		return t
	}
	t.UserID = rest
	return t
}

// ThreadID returns the stable thread key for a user within a domain.
func ThreadID(d Domain, userID string) string {
	return d.Slug() + "_" + userID
}

// FollowupThreadID returns the thread key for a user's follow-up on one case.
func FollowupThreadID(caseID, userID string) string {
	return DomainFollowup.Slug() + "_" + caseID + "_" + userID
}
