package composer

import (
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/hrassist/internal/engine"
	"github.com/kalambet/hrassist/internal/retrieval"
	"github.com/kalambet/hrassist/internal/session"
	"github.com/kalambet/hrassist/internal/tools"
)

const (
	defaultMaxHistoryTokens = 2000
	defaultOrganization     = "Trenkwalder Group"

	contextHeader = "[Retrieved Context]\n"
	resultsHeader = "[Tool Results]\n"
)

// ToolCatalog is the part of tools.Registry the composer renders.
type ToolCatalog interface {
	Definitions() []tools.Definition
	Employees() []tools.Employee
	DefaultEmployee() string
}

// ToolResult is one executed tool call fed back to the model.
type ToolResult struct {
	Call   tools.Call
	Output string
	Failed bool
}

// Exchange is one round of the tool loop: the model output that requested
// the tools and what they returned.
type Exchange struct {
	ModelOutput string
	Results     []ToolResult
}

// Prompt is everything the composer needs for one model call.
type Prompt struct {
	Question string
	// Context is nil when retrieval was skipped for this question.
	Context   *retrieval.ContextBlock
	History   []session.Turn
	Documents []string
	Exchanges []Exchange
	// Final tells the model to answer without requesting more tools.
	Final bool
}

// Composer assembles chat messages from system instructions, tool
// definitions, retrieved context, conversation history and the question.
type Composer struct {
	Catalog          ToolCatalog
	Organization     string
	MaxHistoryTokens int

	now func() time.Time
}

// New creates a Composer. If maxHistoryTokens <= 0, the default (2000) is
// used.
func New(catalog ToolCatalog, maxHistoryTokens int) *Composer {
	if maxHistoryTokens <= 0 {
		maxHistoryTokens = defaultMaxHistoryTokens
	}
	return &Composer{
		Catalog:          catalog,
		Organization:     defaultOrganization,
		MaxHistoryTokens: maxHistoryTokens,
		now:              time.Now,
	}
}

// Compose builds the message list for one model call. The system message
// comes first, then the history that fits the token budget, then the
// question, then one assistant/user pair per tool round.
func (c *Composer) Compose(p Prompt) []engine.Message {
	msgs := []engine.Message{{Role: engine.RoleSystem, Content: c.systemPrompt(p)}}

	for _, t := range c.fitHistory(p.History) {
		msgs = append(msgs, historyMessage(t))
	}
	msgs = append(msgs, engine.Message{Role: engine.RoleUser, Content: p.Question})

	for i, ex := range p.Exchanges {
		last := i == len(p.Exchanges)-1
		msgs = append(msgs,
			engine.Message{Role: engine.RoleAssistant, Content: ex.ModelOutput},
			engine.Message{Role: engine.RoleUser, Content: formatResults(ex.Results, last && p.Final)},
		)
	}
	return msgs
}

func (c *Composer) systemPrompt(p Prompt) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a helpful HR assistant for %s. You help employees with company policies, benefits and procedures from company documents, and with their personal HR data: vacation days, sick leave, upcoming leave, payslips and profiles.\n\n", c.Organization)

	sb.WriteString("## Tools\n")
	sb.WriteString("To use a tool, reply with exactly one line per call in this format and nothing else on that line:\n")
	sb.WriteString(tools.DirectivePrefix + ` tool_name(param="value")` + "\n\n")
	sb.WriteString("Available tools:\n")
	if c.Catalog != nil {
		for _, d := range c.Catalog.Definitions() {
			fmt.Fprintf(&sb, "- %s %s - %s\n", tools.DirectivePrefix, signature(d, c.Catalog.DefaultEmployee()), d.Description)
		}
	}
	sb.WriteString("\nRules:\n")
	sb.WriteString("- Personal data (vacation, sick leave, upcoming leave, salary, profile): call the matching HR tool.\n")
	sb.WriteString("- Policies, benefits, procedures or uploaded documents: use the retrieved context, or call search_documents if none is given.\n")
	sb.WriteString("- Greetings, thanks and questions about yourself: answer directly and briefly without tools.\n")
	sb.WriteString("- Never invent facts. If the documents or tools do not contain the answer, say so.\n\n")

	sb.WriteString("## Current context\n")
	if c.Catalog != nil {
		fmt.Fprintf(&sb, "- You are assisting employee %s (default).\n", c.Catalog.DefaultEmployee())
	}
	fmt.Fprintf(&sb, "- Today's date: %s\n", c.now().Format("2006-01-02"))
	if c.Catalog != nil && len(c.Catalog.Employees()) > 0 {
		sb.WriteString("\nEmployee name to ID mapping:\n")
		for _, e := range c.Catalog.Employees() {
			fmt.Fprintf(&sb, "- %q -> %s\n", e.Name, e.ID)
		}
		fmt.Fprintf(&sb, "When the user asks about \"my\" data, use %s.\n", c.Catalog.DefaultEmployee())
	}

	if len(p.Documents) > 0 {
		sb.WriteString("\n## Knowledge base documents\n")
		for _, name := range p.Documents {
			fmt.Fprintf(&sb, "- %s\n", name)
		}
	}

	if p.Context != nil {
		sb.WriteString("\n")
		sb.WriteString(contextHeader)
		sb.WriteString(p.Context.Text)
		sb.WriteString("\n")
		if !p.Context.Found {
			sb.WriteString("\nTell the user that no relevant information was found in the available documents. Do not make up an answer.\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// fitHistory keeps the newest turns that fit MaxHistoryTokens.
func (c *Composer) fitHistory(turns []session.Turn) []session.Turn {
	remaining := c.MaxHistoryTokens
	start := len(turns)
	for i := len(turns) - 1; i >= 0; i-- {
		tokens := EstimateTokens(turns[i].Content)
		if tokens > remaining {
			break
		}
		remaining -= tokens
		start = i
	}
	return turns[start:]
}

func historyMessage(t session.Turn) engine.Message {
	switch t.Role {
	case session.RoleAssistant:
		return engine.Message{Role: engine.RoleAssistant, Content: t.Content}
	case session.RoleToolResult:
		return engine.Message{Role: engine.RoleUser, Content: resultsHeader + t.Content}
	default:
		return engine.Message{Role: engine.RoleUser, Content: t.Content}
	}
}

// FormatResult renders a single tool result the way it is shown to the
// model and stored in history.
func FormatResult(r ToolResult) string {
	verb := "Result of"
	if r.Failed {
		verb = "Error from"
	}
	return fmt.Sprintf("%s %s:\n%s", verb, r.Call.String(), r.Output)
}

func formatResults(results []ToolResult, final bool) string {
	var sb strings.Builder
	sb.WriteString(resultsHeader)
	for _, r := range results {
		sb.WriteString(FormatResult(r))
		sb.WriteString("\n\n")
	}
	if final {
		sb.WriteString("Answer the question now using only the information above. Do not call any more tools.")
	} else {
		sb.WriteString("Use these results to answer the question. If a tool failed, tell the user in plain words. Call another tool only if you still need data.")
	}
	return sb.String()
}

// signature renders a tool as an example call, e.g.
// get_vacation_days(employee_id="EMP001").
func signature(d tools.Definition, defaultEmployee string) string {
	args := make([]string, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		var v string
		switch p.Type {
		case tools.TypeEmployee:
			v = fmt.Sprintf("%q", defaultEmployee)
		case tools.TypeInteger, tools.TypeNumber:
			v = "<" + p.Name + ">"
		case tools.TypeBoolean:
			v = "true"
		default:
			v = fmt.Sprintf("%q", "your "+strings.ReplaceAll(p.Name, "_", " "))
		}
		arg := p.Name + "=" + v
		if !p.Required && p.Type != tools.TypeEmployee {
			arg += " (optional)"
		}
		args = append(args, arg)
	}
	return d.Name + "(" + strings.Join(args, ", ") + ")"
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
