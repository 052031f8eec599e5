package extract

import "github.com/soyeahso/hotline/internal/domain"

var medical = &Schema{
	Name:    "medical_emergency_case",
	Domain:  domain.DomainMedical,
	Subject: "medical emergency",
	Fields: []Field{
		{Name: "patient_name", Type: String, Description: "Patient's name", Required: true},
		{Name: "patient_age", Type: Integer, Description: "Patient's age in years"},
		{Name: "patient_phone", Type: String, Description: "Patient's phone number"},
		{Name: "location_address", Type: String, Description: "Current address", Required: true},
		{
			Name:        "emergency_type",
			Type:        String,
			Description: "Type of medical emergency",
			Enum:        []string{"cardiac", "breathing", "stroke", "injury", "bleeding", "burn", "allergic_reaction", "poisoning", "unconscious", "pregnancy", "other"},
			Derived:     true,
		},
		{Name: "symptoms", Type: String, Description: "Symptoms description", Required: true},
		{Name: "urgency_level", Type: String, Description: "Urgency: severe, moderate, minor", Enum: []string{"severe", "moderate", "minor"}, Derived: true},
		{Name: "allergies", Type: String, Description: "Known allergies"},
		{Name: "medications", Type: String, Description: "Current medications"},
		{Name: "contact_person", Type: String, Description: "Emergency contact"},
	},
	Confirmation: "Medical professionals have been notified and will contact you shortly.",
}

var police = &Schema{
	Name:    "police_emergency_case",
	Domain:  domain.DomainPolice,
	Subject: "police emergency",
	Fields: []Field{
		{Name: "reporter_name", Type: String, Description: "Reporter's name", Required: true},
		{Name: "reporter_phone", Type: String, Description: "Reporter's phone"},
		{Name: "incident_location", Type: String, Description: "Incident address", Required: true},
		{
			Name:        "incident_type",
			Type:        String,
			Description: "Type of incident",
			Enum:        []string{"theft", "robbery", "burglary", "assault", "domestic_violence", "harassment", "vandalism", "missing_person", "traffic_accident", "suspicious_activity", "other"},
			Derived:     true,
			Required:    true,
		},
		{Name: "incident_time", Type: String, Description: "When it occurred"},
		{Name: "description", Type: String, Description: "Incident description"},
		{Name: "suspect_details", Type: String, Description: "Suspect information"},
		{
			Name:        "urgency",
			Type:        String,
			Description: "immediate (crime in progress or someone hurt), urgent (just happened), routine (report after the fact)",
			Enum:        []string{"immediate", "urgent", "routine"},
			Derived:     true,
		},
	},
	Confirmation: "Police have been notified and officers are being dispatched.",
}

var electricity = &Schema{
	Name:    "electricity_emergency_case",
	Domain:  domain.DomainElectricity,
	Subject: "electrical emergency",
	Fields: []Field{
		{Name: "reporter_name", Type: String, Description: "Reporter's name", Required: true},
		{Name: "reporter_phone", Type: String, Description: "Reporter's phone"},
		{Name: "location", Type: String, Description: "Issue location", Required: true},
		{
			Name:        "issue_type",
			Type:        String,
			Description: "Type of issue",
			Enum:        []string{"power_outage", "transformer_issue", "broken_pole", "sparks_fire_hazard", "meter_fault", "billing_complaint"},
			Derived:     true,
			Required:    true,
		},
		{
			Name:        "severity",
			Type:        String,
			Description: "hazardous (fire, live wire, electrocution risk), major_outage (whole block or area), minor (single connection)",
			Enum:        []string{"hazardous", "major_outage", "minor"},
			Derived:     true,
			Required:    true,
		},
		{Name: "time_started", Type: String, Description: "When issue started"},
		{Name: "description", Type: String, Description: "Issue description"},
	},
	Confirmation: "The electricity department has been notified and a crew will be assigned.",
}

var fire = &Schema{
	Name:    "fire_emergency_case",
	Domain:  domain.DomainFire,
	Subject: "fire emergency",
	Fields: []Field{
		{Name: "reporter_name", Type: String, Description: "Reporter's name", Required: true},
		{Name: "reporter_phone", Type: String, Description: "Reporter's phone"},
		{Name: "location", Type: String, Description: "Location address", Required: true},
		{
			Name:        "fire_type",
			Type:        String,
			Description: "Type of fire",
			Enum:        []string{"building_fire", "kitchen_fire", "electrical_fire", "vehicle_fire", "wildfire", "gas_leak", "other"},
			Derived:     true,
			Required:    true,
		},
		{
			Name:        "severity_level",
			Type:        String,
			Description: "Severity level",
			Enum:        []string{"critical", "major", "minor"},
			Derived:     true,
			Required:    true,
		},
		{Name: "time_started", Type: String, Description: "Time fire started"},
		{Name: "people_at_risk", Type: String, Description: "People at risk"},
		{Name: "building_details", Type: String, Description: "Building or structure details"},
		{Name: "hazards_present", Type: String, Description: "Hazards present"},
	},
	Confirmation: "Emergency services have been notified.",
}

var schemas = map[domain.Domain]*Schema{
	domain.DomainMedical:     medical,
	domain.DomainPolice:      police,
	domain.DomainElectricity: electricity,
	domain.DomainFire:        fire,
}

// ForDomain returns the case schema of a specialist domain.
func ForDomain(d domain.Domain) (*Schema, bool) {
	s, ok := schemas[d]
	return s, ok
}
