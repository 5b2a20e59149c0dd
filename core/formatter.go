package orchestration

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/team-rrr/voice-multi-agent-accelerator/core/agents"
)

// Card is the structured payload shown alongside the spoken response.
type Card struct {
	Title            string     `json:"title"`
	Items            []CardItem `json:"items"`
	FollowUpQuestion string     `json:"follow_up_question,omitempty"`
}

// CardItem is one card entry. Group separates preparation items, patient
// context notes, and suggested questions.
type CardItem struct {
	Group string `json:"group,omitempty"`
	Text  string `json:"text"`
}

const (
	cardGroupPreparation = "preparation"
	cardGroupContext     = "context"
	cardGroupQuestions   = "questions"
)

// defaultQuestions are offered on every card; the stages contribute the
// personalized items around them.
var defaultQuestions = []string{
	"What could be causing my symptoms?",
	"What tests do you recommend?",
	"Are there lifestyle changes I should make?",
	"When should I be concerned about symptoms?",
	"What are my treatment options?",
}

const defaultFollowUp = "Would you like me to send this checklist to your phone or email?"

// FormatCard maps stage invocation outputs to a card. It is a pure
// function: no I/O, no clock, byte-identical output for identical input.
func FormatCard(invocations []agents.Invocation) Card {
	card := Card{
		Title:            "Appointment Preparation",
		FollowUpQuestion: defaultFollowUp,
	}

	for _, invocation := range invocations {
		if invocation.Status != agents.StatusSucceeded {
			continue
		}

		switch invocation.Stage {
		case agents.StageInfo:
			if kind, ok := invocation.Output.Facts["appointment_type"]; ok && kind != "" {
				card.Title = titleCase(kind) + " Appointment Preparation"
			}
			for _, item := range checklistItems(invocation.Output.Text) {
				card.Items = append(card.Items, CardItem{Group: cardGroupPreparation, Text: item})
			}
		case agents.StageContext:
			if summary := strings.TrimSpace(invocation.Output.Text); summary != "" {
				card.Items = append(card.Items, CardItem{Group: cardGroupContext, Text: summary})
			}
		case agents.StageAction:
			if question := trailingQuestion(invocation.Output.Text); question != "" {
				card.FollowUpQuestion = question
			}
		}
	}

	for _, question := range defaultQuestions {
		card.Items = append(card.Items, CardItem{Group: cardGroupQuestions, Text: question})
	}

	return card
}

// checklistItems extracts "- " bullet lines from a stage's checklist text.
func checklistItems(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if item, ok := strings.CutPrefix(line, "- "); ok {
			items = append(items, strings.TrimSpace(item))
		}
	}
	return items
}

// trailingQuestion returns the final question sentence of the text, if any.
func trailingQuestion(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasSuffix(text, "?") {
		return ""
	}

	start := 0
	for i := len(text) - 2; i >= 0; i-- {
		if c := text[i]; c == '.' || c == '!' || c == '?' || c == '\n' {
			start = i + 1
			break
		}
	}
	return strings.TrimSpace(text[start:])
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		first, size := utf8.DecodeRuneInString(word)
		words[i] = string(unicode.ToUpper(first)) + word[size:]
	}
	return strings.Join(words, " ")
}
