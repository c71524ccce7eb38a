package rules

import (
	"testing"

	"regflow/internal/model"
)

var tierItems = []model.Item{
	{Name: "Tier1", Amount: 100, Currency: "INR"},
	{Name: "Tier2", Amount: 250, Currency: "INR"},
}

func andRule(question, answer, item string) model.Rule {
	return model.Rule{
		Conditions: []model.Condition{{QuestionID: question, Answer: answer, Operator: model.OperatorAnd}},
		ItemName:   item,
	}
}

func TestEvaluate_AndMatchesEqualAnswer(t *testing.T) {
	rules := []model.Rule{andRule("Q1", "Competitive", "Tier1")}

	item := Evaluate(map[string]string{"Q1": "Competitive"}, rules, tierItems)
	if item == nil {
		t.Fatal("expected a match")
	}
	if item.Name != "Tier1" || item.Amount != 100 || item.Currency != "INR" {
		t.Errorf("wrong item: %+v", item)
	}

	if got := Evaluate(map[string]string{"Q1": "Other"}, rules, tierItems); got != nil {
		t.Errorf("expected no match for non-equal answer, got %+v", got)
	}
}

func TestEvaluate_AndIsCaseSensitive(t *testing.T) {
	rules := []model.Rule{andRule("Q1", "Competitive", "Tier1")}

	if got := Evaluate(map[string]string{"Q1": "competitive"}, rules, tierItems); got != nil {
		t.Errorf("comparison must be case-sensitive, got %+v", got)
	}
}

func TestEvaluate_TrimsBothSides(t *testing.T) {
	rules := []model.Rule{andRule("Q1", " Competitive ", "Tier1")}

	if got := Evaluate(map[string]string{"Q1": "Competitive  "}, rules, tierItems); got == nil {
		t.Error("expected trimmed values to match")
	}
}

func TestEvaluate_OrMeansNotEqual(t *testing.T) {
	rules := []model.Rule{{
		Conditions: []model.Condition{{QuestionID: "Q1", Answer: "Student", Operator: model.OperatorOr}},
		ItemName:   "Tier2",
	}}

	if got := Evaluate(map[string]string{"Q1": "Professional"}, rules, tierItems); got == nil || got.Name != "Tier2" {
		t.Errorf("OR must match a differing answer, got %+v", got)
	}
	if got := Evaluate(map[string]string{"Q1": "Student"}, rules, tierItems); got != nil {
		t.Errorf("OR must not match an equal answer, got %+v", got)
	}
}

func TestEvaluate_AllConditionsMustHold(t *testing.T) {
	rules := []model.Rule{{
		Conditions: []model.Condition{
			{QuestionID: "Q1", Answer: "Competitive", Operator: model.OperatorAnd},
			{QuestionID: "Q2", Answer: "Online", Operator: model.OperatorOr},
		},
		ItemName: "Tier1",
	}}

	if got := Evaluate(map[string]string{"Q1": "Competitive", "Q2": "Venue"}, rules, tierItems); got == nil {
		t.Error("both conditions hold, expected a match")
	}
	if got := Evaluate(map[string]string{"Q1": "Competitive", "Q2": "Online"}, rules, tierItems); got != nil {
		t.Errorf("second condition fails, expected no match, got %+v", got)
	}
}

func TestEvaluate_MissingAnswerNeverMatches(t *testing.T) {
	rules := []model.Rule{andRule("Q9", "Anything", "Tier1")}

	if got := Evaluate(map[string]string{"Q1": "Anything"}, rules, tierItems); got != nil {
		t.Errorf("rule over an unanswered question must not match, got %+v", got)
	}
}

func TestEvaluate_FirstMatchingRuleWins(t *testing.T) {
	rules := []model.Rule{
		andRule("Q1", "Competitive", "Tier2"),
		andRule("Q1", "Competitive", "Tier1"),
	}

	got := Evaluate(map[string]string{"Q1": "Competitive"}, rules, tierItems)
	if got == nil || got.Name != "Tier2" {
		t.Errorf("earlier rule must win, got %+v", got)
	}
}

func TestEvaluate_DegenerateRulesNeverMatch(t *testing.T) {
	rules := []model.Rule{
		{Conditions: nil, ItemName: "Tier1"},
		{Conditions: []model.Condition{{QuestionID: "Q1", Answer: "X", Operator: model.OperatorAnd}}, ItemName: ""},
		{Conditions: []model.Condition{{QuestionID: "Q1", Answer: "X", Operator: model.OperatorAnd}}, ItemName: "NoSuchItem"},
	}

	if got := Evaluate(map[string]string{"Q1": "X"}, rules, tierItems); got != nil {
		t.Errorf("degenerate rules must never match, got %+v", got)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	rules := []model.Rule{
		andRule("Q1", "Competitive", "Tier1"),
		andRule("Q2", "Online", "Tier2"),
	}
	answers := map[string]string{"Q1": "Competitive", "Q2": "Online"}

	first := Evaluate(answers, rules, tierItems)
	for i := 0; i < 50; i++ {
		got := Evaluate(answers, rules, tierItems)
		if got == nil || first == nil || got.Name != first.Name {
			t.Fatalf("run %d: got %+v, want %+v", i, got, first)
		}
	}
}

func TestInvoicingAnswers_FiltersNonInvoicingQuestions(t *testing.T) {
	form := &model.Form{Questions: []model.Question{
		{ID: "Q1", UsedForInvoicing: true},
		{ID: "Q2", UsedForInvoicing: false},
	}}
	answers := []model.Answer{
		{QuestionID: "Q1", Value: "Competitive"},
		{QuestionID: "Q2", Value: "ignored"},
	}

	got := InvoicingAnswers(form, answers)
	if len(got) != 1 || got["Q1"] != "Competitive" {
		t.Errorf("unexpected invoicing answers: %v", got)
	}
}
