package orchestration

import (
	"reflect"
	"testing"

	"github.com/team-rrr/voice-multi-agent-accelerator/core/agents"
)

func successfulInvocations() []agents.Invocation {
	return []agents.Invocation{
		{
			Stage:  agents.StageInfo,
			Status: agents.StatusSucceeded,
			Output: agents.Result{
				Text:  "Bring the following:\n- Recent medical records\n- A medication list",
				Facts: map[string]string{"appointment_type": "cardiology"},
			},
		},
		{
			Stage:  agents.StageContext,
			Status: agents.StatusSucceeded,
			Output: agents.Result{Text: "Recent diagnoses include hypertension."},
		},
		{
			Stage:  agents.StageAction,
			Status: agents.StatusSucceeded,
			Output: agents.Result{Text: "Here is your checklist. Shall I email it to you?"},
		},
	}
}

func TestFormatCardIsDeterministic(t *testing.T) {
	invocations := successfulInvocations()
	first := FormatCard(invocations)
	second := FormatCard(invocations)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical cards for identical input:\n%+v\n%+v", first, second)
	}
}

func TestFormatCardTitleFromAppointmentType(t *testing.T) {
	card := FormatCard(successfulInvocations())
	if card.Title != "Cardiology Appointment Preparation" {
		t.Fatalf("unexpected card title %q", card.Title)
	}
}

func TestFormatCardGroupsStageOutputs(t *testing.T) {
	card := FormatCard(successfulInvocations())

	counts := map[string]int{}
	for _, item := range card.Items {
		counts[item.Group]++
	}
	if counts[cardGroupPreparation] != 2 {
		t.Fatalf("expected two preparation items, got %d", counts[cardGroupPreparation])
	}
	if counts[cardGroupContext] != 1 {
		t.Fatalf("expected one context item, got %d", counts[cardGroupContext])
	}
	if counts[cardGroupQuestions] != len(defaultQuestions) {
		t.Fatalf("expected %d suggested questions, got %d", len(defaultQuestions), counts[cardGroupQuestions])
	}

	if card.FollowUpQuestion != "Shall I email it to you?" {
		t.Fatalf("expected the action stage's trailing question, got %q", card.FollowUpQuestion)
	}
}

func TestFormatCardTitleHandlesMultibyteAppointmentType(t *testing.T) {
	invocations := []agents.Invocation{{
		Stage:  agents.StageInfo,
		Status: agents.StatusSucceeded,
		Output: agents.Result{
			Facts: map[string]string{"appointment_type": "électrophysiologie"},
		},
	}}

	card := FormatCard(invocations)
	if card.Title != "Électrophysiologie Appointment Preparation" {
		t.Fatalf("unexpected card title %q", card.Title)
	}
}

func TestFormatCardSkipsFailedStages(t *testing.T) {
	invocations := successfulInvocations()
	invocations[1].Status = agents.StatusFailed
	invocations[1].Output = agents.Result{}

	card := FormatCard(invocations)
	for _, item := range card.Items {
		if item.Group == cardGroupContext {
			t.Fatalf("failed stage output leaked into the card: %+v", item)
		}
	}
}

func TestFormatCardDefaultsWithoutStageOutput(t *testing.T) {
	card := FormatCard(nil)
	if card.Title != "Appointment Preparation" {
		t.Fatalf("unexpected default title %q", card.Title)
	}
	if card.FollowUpQuestion != defaultFollowUp {
		t.Fatalf("unexpected default follow-up %q", card.FollowUpQuestion)
	}
	if len(card.Items) != len(defaultQuestions) {
		t.Fatalf("expected only the suggested questions, got %d items", len(card.Items))
	}
}
