// Package caregiver provides a deterministic stage client for appointment
// preparation. It answers every stage from built-in knowledge, with no
// network round trip, which makes it suitable for demos and offline runs
// where no model-backed client is configured.
package caregiver

import (
	"context"
	"fmt"
	"strings"

	"github.com/team-rrr/voice-multi-agent-accelerator/core/agents"
)

const checklist = `To prepare for the cardiology appointment, bring:
- Recent medical records
- A complete list of current medications (including supplements)
- A log of symptoms
- Family history of heart conditions
- A list of questions for the doctor`

const patientContext = "The patient's recent diagnoses include hypertension and atrial fibrillation. Their last EKG was performed two months ago and showed mild arrhythmia."

// knownSymptoms maps utterance phrases to the symptom fact they establish.
var knownSymptoms = []string{
	"chest pain",
	"shortness of breath",
	"palpitations",
	"dizziness",
	"fatigue",
}

// knownAppointmentTypes maps utterance phrases to an appointment type.
var knownAppointmentTypes = map[string]string{
	"cardiology":       "cardiology",
	"cardiologist":     "cardiology",
	"heart doctor":     "cardiology",
	"heart specialist": "cardiology",
}

// Client is a stage client answering from static caregiver knowledge.
type Client struct{}

// New creates a caregiver stage client.
func New() *Client { return &Client{} }

// Invoke answers one stage from built-in knowledge. It never fails, but it
// does respect ctx so a cancelled turn stops promptly.
func (c *Client) Invoke(ctx context.Context, kind agents.StageKind, req agents.Request) (agents.Result, error) {
	if err := ctx.Err(); err != nil {
		return agents.Result{}, err
	}

	switch kind {
	case agents.StageInfo:
		return c.info(req), nil
	case agents.StageContext:
		return c.patientContext(req), nil
	case agents.StageAction:
		return c.action(req), nil
	default:
		return agents.Result{}, fmt.Errorf("unknown stage %q", kind)
	}
}

func (c *Client) info(req agents.Request) agents.Result {
	facts := map[string]string{}
	query := strings.ToLower(req.Query)

	for _, symptom := range knownSymptoms {
		if strings.Contains(query, symptom) {
			facts["symptom"] = symptom
			break
		}
	}
	for phrase, kind := range knownAppointmentTypes {
		if strings.Contains(query, phrase) {
			facts["appointment_type"] = kind
			break
		}
	}

	return agents.Result{Text: checklist, Facts: facts, Confidence: 1.0}
}

func (c *Client) patientContext(req agents.Request) agents.Result {
	return agents.Result{
		Text:       patientContext,
		Facts:      map[string]string{"patient_context": patientContext},
		Confidence: 1.0,
	}
}

func (c *Client) action(req agents.Request) agents.Result {
	var sections []string
	sections = append(sections, "I've created a checklist for the appointment based on this information:")
	if checklist, ok := req.Context["info_checklist"]; ok {
		sections = append(sections, checklist)
	}
	if patientContext, ok := req.Context["patient_context"]; ok {
		sections = append(sections, "I've also noted the following from the patient's recent record:")
		sections = append(sections, patientContext)
	}
	sections = append(sections, "Would you like me to send this checklist to your phone or email?")

	return agents.Result{Text: strings.Join(sections, "\n\n"), Confidence: 1.0}
}
