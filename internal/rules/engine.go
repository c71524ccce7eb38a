package rules

import (
	"strings"

	"regflow/internal/model"
)

// Evaluate walks the event's rules in declaration order and returns the item
// linked by the first rule whose conditions all hold for the submitted
// answers. Only answers to invoicing questions participate; everything else
// is ignored. A nil return is the valid "no pricing applies" outcome, not an
// error.
//
// Condition semantics are deliberately literal: AND means the trimmed answer
// equals the expected value (case-sensitive), OR means it does not. A rule
// with no conditions, no resolvable item, or a missing answer never matches.
func Evaluate(answers map[string]string, rules []model.Rule, items []model.Item) *model.Item {
	for _, rule := range rules {
		if !matches(answers, rule) {
			continue
		}
		for i := range items {
			if items[i].Name == rule.ItemName {
				item := items[i]
				return &item
			}
		}
		// A dangling item link means this rule never matches; later
		// rules still get their turn.
	}
	return nil
}

// InvoicingAnswers filters a submission down to the answers flagged as used
// for invoicing on the owning form, keyed by question ID.
func InvoicingAnswers(form *model.Form, answers []model.Answer) map[string]string {
	invoicing := make(map[string]bool, len(form.Questions))
	for _, q := range form.Questions {
		if q.UsedForInvoicing {
			invoicing[q.ID] = true
		}
	}
	out := make(map[string]string)
	for _, a := range answers {
		if invoicing[a.QuestionID] {
			out[a.QuestionID] = a.Value
		}
	}
	return out
}

func matches(answers map[string]string, rule model.Rule) bool {
	if len(rule.Conditions) == 0 || rule.ItemName == "" {
		return false
	}
	for _, cond := range rule.Conditions {
		answer, ok := answers[cond.QuestionID]
		if !ok {
			return false
		}
		got := strings.TrimSpace(answer)
		want := strings.TrimSpace(cond.Answer)
		switch cond.Operator {
		case model.OperatorAnd:
			if got != want {
				return false
			}
		case model.OperatorOr:
			if got == want {
				return false
			}
		default:
			return false
		}
	}
	return true
}
