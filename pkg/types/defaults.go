// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// DefaultSystemPrompt is the base medical system prompt.
const DefaultSystemPrompt = `You are a medical information assistant. Provide accurate, evidence-based
health information in clear language. You do not diagnose conditions or
prescribe treatment. Recommend consulting a qualified healthcare professional
for personal medical decisions, and state uncertainty when the evidence is
limited.`

// DefaultEmergencyResponse is returned instead of a generated reply when the
// user message mentions an emergency.
const DefaultEmergencyResponse = `Your message describes symptoms that may indicate a medical emergency.
Call your local emergency number (911 in the US) or go to the nearest
emergency department now. Do not wait for an online response.`

// DefaultEmergencyKeywords are matched as case-insensitive substrings.
var DefaultEmergencyKeywords = []string{
	"chest pain",
	"difficulty breathing",
	"can't breathe",
	"cannot breathe",
	"heart attack",
	"stroke",
	"severe bleeding",
	"unconscious",
	"overdose",
	"suicide",
	"seizure",
	"anaphylaxis",
}

// DefaultSpecialtyPrompts returns the built-in specialty addenda.
func DefaultSpecialtyPrompts() map[Specialty]string {
	return map[Specialty]string{
		SpecialtyCardiology:        "Focus on cardiovascular health: heart disease, blood pressure, lipids and cardiac risk factors.",
		SpecialtyEndocrinology:     "Focus on endocrine and metabolic conditions such as diabetes, thyroid disease and hormonal disorders.",
		SpecialtyNeurology:         "Focus on disorders of the brain, spinal cord and nerves, including headache, epilepsy and dementia.",
		SpecialtyOncology:          "Focus on cancer prevention, screening, treatment options and supportive care.",
		SpecialtyPediatrics:        "Focus on the health of infants, children and adolescents, including growth and vaccination.",
		SpecialtyPsychiatry:        "Focus on mental health, including mood, anxiety and substance use disorders. Be supportive and non-judgmental.",
		SpecialtyDermatology:       "Focus on conditions of the skin, hair and nails.",
		SpecialtyInfectiousDisease: "Focus on infections, antimicrobial therapy and prevention of transmission.",
		SpecialtyPulmonology:       "Focus on respiratory conditions such as asthma, COPD and pneumonia.",
	}
}
