package intent

import (
	"regexp"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		question string
		want     Intent
	}{
		{"How many vacation days do I have?", DataQuery},
		{"how much PTO is left", DataQuery},
		{"How many sick days has Klahm Sebestian taken?", DataQuery},
		{"Do I have any upcoming leave?", DataQuery},
		{"What's my net salary this month?", DataQuery},
		{"Show me my payslip", DataQuery},
		{"Who is my manager?", DataQuery},
		{"Get the profile for EMP002", DataQuery},
		{"When do I get paid?", DataQuery},

		{"What does the vacation policy say about carry-over?", DocumentQuery},
		{"Summarize the uploaded document", DocumentQuery},
		{"What is the onboarding process for new hires?", DocumentQuery},
		{"Am I eligible for paid parental leave?", DocumentQuery},
		{"Tell me about the company's remote work arrangements", DocumentQuery},
		{"What is the dress code?", DocumentQuery},
		{"Is parental leave paid?", DocumentQuery},
		{"Which public holidays does the company observe?", DocumentQuery},
		{"What benefits does the company offer for sick days?", DocumentQuery},
		{"How does sick leave work?", DocumentQuery},
		{"Are holidays paid?", DocumentQuery},

		{"Am I paid on the last day of the month?", DataQuery},
		{"Which holidays have I booked?", DataQuery},
		{"How much sick leave is left?", DataQuery},
		{"Was I ill for long last year?", DataQuery},

		{"Hello", General},
		{"hi there!", General},
		{"Good morning", General},
		{"Thanks a lot", General},
		{"bye", General},
		{"What can you help me with?", General},
		{"   ", General},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			if got := Classify(tt.question); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.question, got, tt.want)
			}
		})
	}
}

func TestClassify_GreetingWithQuestionIsNotSmallTalk(t *testing.T) {
	if got := Classify("Hello, how many vacation days do I have?"); got != DataQuery {
		t.Errorf("got %q, want %q", got, DataQuery)
	}
	if got := Classify("Hi, what is the expense reimbursement deadline?"); got != DocumentQuery {
		t.Errorf("got %q, want %q", got, DocumentQuery)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	q := "How many vacation days do I have?"
	first := Classify(q)
	for i := 0; i < 100; i++ {
		if got := Classify(q); got != first {
			t.Fatalf("call %d returned %q, first call returned %q", i, got, first)
		}
	}
}

func TestClassifier_RuleOrder(t *testing.T) {
	vacation := regexp.MustCompile(`\bvacation\b`)
	c := New(
		Rule{Intent: General, Patterns: []*regexp.Regexp{vacation}},
		Rule{Intent: DataQuery, Patterns: []*regexp.Regexp{vacation}},
	)
	if got := c.Classify("vacation"); got != General {
		t.Errorf("first matching rule should win, got %q", got)
	}
	if got := c.Classify("something else"); got != DocumentQuery {
		t.Errorf("unmatched question = %q, want %q", got, DocumentQuery)
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"  Hello,   World!! ": "hello world",
		"What's my PTO?":      "what s my pto",
		"Überstunden-Regel":   "überstunden regel",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
