// Package intent labels a question as a personal data lookup, a document
// question, or small talk. Classification is a static ordered rule table:
// the first rule with a matching pattern decides, and anything unmatched is
// treated as a document question.
package intent

import (
	"regexp"
	"strings"
)

// Intent is the classified purpose of a question.
type Intent string

const (
	// DataQuery asks for personal HR data served by a tool.
	DataQuery Intent = "data-query"
	// DocumentQuery is answered from the document corpus.
	DocumentQuery Intent = "document-query"
	// General is a greeting or small talk.
	General Intent = "general"
)

// Rule maps a pattern set to an intent. Patterns run against the normalized
// question: lower case, punctuation replaced by spaces, single-spaced.
type Rule struct {
	Intent   Intent
	Patterns []*regexp.Regexp
}

func (r Rule) matches(q string) bool {
	for _, p := range r.Patterns {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}

// Sick leave, holidays and pay are also policy topics. They count as data
// words only next to a personal or quantity marker: "is parental leave
// paid" is a document question, "am I paid on Friday" is not.
const (
	personal     = `(my|i|me|how many|how much)`
	personalOnly = `(sick (leave|days?)|sickness|ill(ness)?|holidays?|paid)`
)

// DefaultRules is the rule table used by Classify. Explicit references to
// documents win over data keywords so "what does the vacation policy say"
// searches the documents instead of fetching a balance.
var DefaultRules = []Rule{
	{
		Intent: DocumentQuery,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(polic(y|ies)|handbook|guidelines?|guide|procedures?|process|rules?|regulations?|faq|onboarding)\b`),
			regexp.MustCompile(`\b(documents?|files?|pdf|uploaded|cv|resume|report)\b`),
			regexp.MustCompile(`\b(entitled|eligible|eligibility|allowed to)\b`),
			regexp.MustCompile(`\b(benefits?|perks?|(public|bank|national) holidays?|observes?|observed)\b`),
		},
	},
	{
		Intent: DataQuery,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(vacation|pto|annual leave|time off|days off|leave balance)\b`),
			regexp.MustCompile(`\b` + personal + `\b.*\b` + personalOnly + `\b`),
			regexp.MustCompile(`\b` + personalOnly + `\b.*\b(taken|left|remaining|used|balance|booked)\b`),
			regexp.MustCompile(`\b(upcoming|scheduled|planned|booked) (leave|vacation|time off|absences?)\b`),
			regexp.MustCompile(`\b(pay ?slips?|salary|salaries|paycheck|wages?|net pay|gross pay|deductions?|payday|pay date|get paid)\b`),
			regexp.MustCompile(`\b(my|his|her|their) (profile|manager|department|position|role|team|start date|employee id)\b`),
			regexp.MustCompile(`\bemp\d{3,}\b`),
		},
	},
	{
		Intent: General,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`^(hi|hello|hey|hiya|howdy|greetings|good (morning|afternoon|evening|day))( there| all| everyone| again)?$`),
			regexp.MustCompile(`^(thanks|thank you|thx|cheers|ok|okay|great|cool|perfect|awesome|nice)( (so much|a lot|very much|again))?$`),
			regexp.MustCompile(`^(bye|goodbye|see you|see ya|take care|have a nice day)( later| soon)?$`),
			regexp.MustCompile(`^(who are you|what are you|what do you do|what can you do|what can you help( me)? with|how can you help( me)?|how are you( doing)?|help)$`),
		},
	},
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Normalize lowercases q and reduces it to words separated by single spaces.
func Normalize(q string) string {
	return strings.TrimSpace(nonWord.ReplaceAllString(strings.ToLower(q), " "))
}

// Classifier applies an ordered rule table.
type Classifier struct {
	rules []Rule
}

// New returns a Classifier over rules. With no rules it uses DefaultRules.
func New(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Classifier{rules: rules}
}

// Classify returns the intent of the first matching rule, or DocumentQuery.
func (c *Classifier) Classify(question string) Intent {
	q := Normalize(question)
	if q == "" {
		return General
	}
	for _, r := range c.rules {
		if r.matches(q) {
			return r.Intent
		}
	}
	return DocumentQuery
}

var defaultClassifier = New()

// Classify labels question with DefaultRules.
func Classify(question string) Intent {
	return defaultClassifier.Classify(question)
}
