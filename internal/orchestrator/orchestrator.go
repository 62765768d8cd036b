// Package orchestrator answers questions. It classifies each question,
// attaches retrieved context when the question is about documents, and runs
// a bounded tool-calling loop against the chat model.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kalambet/hrassist/internal/composer"
	"github.com/kalambet/hrassist/internal/engine"
	"github.com/kalambet/hrassist/internal/intent"
	"github.com/kalambet/hrassist/internal/metrics"
	"github.com/kalambet/hrassist/internal/retrieval"
	"github.com/kalambet/hrassist/internal/session"
	"github.com/kalambet/hrassist/internal/storage"
	"github.com/kalambet/hrassist/internal/tools"
)

const (
	DefaultMaxToolIterations = 3
	DefaultHistoryTurns      = 10

	// NoInformationAnswer is returned for document questions that no
	// ingested document covers.
	NoInformationAnswer = "I couldn't find any relevant information about that in the available documents."

	fallbackAnswer    = "I'm sorry, I wasn't able to put together an answer to that. Please try rephrasing your question."
	maxCallsPerRound  = 5
	serviceDownNotice = "the data service is currently unavailable"
)

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

// State is a step of one question's processing.
type State string

const (
	StateReceived         State = "Received"
	StateIntentClassified State = "IntentClassified"
	StateContextAttached  State = "ContextAttached"
	StateContextSkipped   State = "ContextSkipped"
	StateModelInvoked     State = "ModelInvoked"
	StateToolCallParsed   State = "ToolCallParsed"
	StateToolExecuted     State = "ToolExecuted"
	StateModelReinvoked   State = "ModelReinvoked"
	StateFinalized        State = "Finalized"
)

// Classifier labels a question.
type Classifier interface {
	Classify(question string) intent.Intent
}

// ContextBuilder retrieves document context for a question.
type ContextBuilder interface {
	Build(ctx context.Context, question string) (retrieval.ContextBlock, error)
}

// Model completes a prompt.
type Model interface {
	Complete(ctx context.Context, messages []engine.Message) (string, error)
}

// Dispatcher executes tool calls.
type Dispatcher interface {
	Dispatch(ctx context.Context, call tools.Call) (tools.Result, error)
}

// DocumentLister lists ingested documents so the model knows what exists.
type DocumentLister interface {
	ListDocuments() ([]storage.Document, error)
}

// Answer is the outcome of one question.
type Answer struct {
	Text       string             `json:"answer"`
	Intent     intent.Intent      `json:"intent"`
	Sources    []retrieval.Source `json:"sources,omitempty"`
	ToolCalls  []tools.Call       `json:"-"`
	Iterations int                `json:"iterations"`
	Forced     bool               `json:"forced,omitempty"`
}

// Deps are the collaborators of an Orchestrator. Documents may be nil.
type Deps struct {
	Sessions   *session.Store
	Classifier Classifier
	Retriever  ContextBuilder
	Model      Model
	Dispatcher Dispatcher
	Composer   *composer.Composer
	Documents  DocumentLister
}

// Config bounds the tool loop and the history sent to the model.
type Config struct {
	MaxToolIterations int
	HistoryTurns      int
}

// Orchestrator ties the classifier, retrieval, tools and model together.
type Orchestrator struct {
	sessions   *session.Store
	classifier Classifier
	retriever  ContextBuilder
	model      Model
	dispatcher Dispatcher
	composer   *composer.Composer
	documents  DocumentLister

	maxIterations int
	historyTurns  int
	logger        *slog.Logger
}

// New creates an Orchestrator. A negative MaxToolIterations disables tool
// execution; zero takes the default.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.MaxToolIterations == 0 {
		cfg.MaxToolIterations = DefaultMaxToolIterations
	}
	if cfg.MaxToolIterations < 0 {
		cfg.MaxToolIterations = 0
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = DefaultHistoryTurns
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewStore()
	}
	if deps.Classifier == nil {
		deps.Classifier = intent.New()
	}
	return &Orchestrator{
		sessions:      deps.Sessions,
		classifier:    deps.Classifier,
		retriever:     deps.Retriever,
		model:         deps.Model,
		dispatcher:    deps.Dispatcher,
		composer:      deps.Composer,
		documents:     deps.Documents,
		maxIterations: cfg.MaxToolIterations,
		historyTurns:  cfg.HistoryTurns,
		logger:        slog.Default(),
	}
}

// Sessions returns the session store.
func (o *Orchestrator) Sessions() *session.Store { return o.sessions }

// Reset clears the history of a session.
func (o *Orchestrator) Reset(sessionID string) {
	o.sessions.Reset(sessionID)
}

// question is the per-question state carried through the loop.
type question struct {
	sessionID string
	text      string
	state     State
	prompt    composer.Prompt
	answer    Answer
	results   []composer.ToolResult
}

func (o *Orchestrator) transition(q *question, s State, args ...any) {
	q.state = s
	o.logger.Debug("orchestrator state", append([]any{"session", q.sessionID, "state", string(s)}, args...)...)
}

// Ask answers a question within a session, creating the session on first
// use. Questions in the same session are processed one at a time. Tool
// failures are narrated in the answer; a model failure returns an error
// wrapping generator.ErrModelUnavailable and leaves the history unchanged.
func (o *Orchestrator) Ask(ctx context.Context, sessionID, text string) (Answer, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Answer{}, ErrEmptyQuestion
	}

	sess := o.sessions.Get(sessionID)
	sess.Lock()
	defer sess.Unlock()

	q := &question{sessionID: sessionID, text: text}
	o.transition(q, StateReceived)

	q.answer.Intent = o.classifier.Classify(text)
	o.transition(q, StateIntentClassified, "intent", string(q.answer.Intent))

	q.prompt = composer.Prompt{
		Question:  text,
		History:   sess.Window(o.historyTurns),
		Documents: o.documentNames(),
	}

	if q.answer.Intent == intent.DocumentQuery && o.retriever != nil {
		block, err := o.retriever.Build(ctx, text)
		var rerr *retrieval.RetrievalError
		if err != nil && !errors.As(err, &rerr) {
			metrics.ObserveQuestion(string(q.answer.Intent), "error")
			return Answer{}, fmt.Errorf("retrieving context: %w", err)
		}
		if err != nil {
			o.logger.Warn("retrieval degraded to no context", "session", sessionID, "error", err)
		}
		o.transition(q, StateContextAttached, "found", block.Found, "sources", len(block.Sources))

		if !block.Found {
			q.answer.Text = NoInformationAnswer
			o.finalize(sess, q)
			metrics.ObserveQuestion(string(q.answer.Intent), "no_context")
			return q.answer, nil
		}
		q.prompt.Context = &block
		q.answer.Sources = append(q.answer.Sources, block.Sources...)
	} else {
		o.transition(q, StateContextSkipped)
	}

	if err := o.runModel(ctx, q); err != nil {
		metrics.ObserveQuestion(string(q.answer.Intent), "error")
		return Answer{}, err
	}

	o.finalize(sess, q)
	outcome := "answered"
	if q.answer.Forced {
		outcome = "forced"
	}
	metrics.ObserveQuestion(string(q.answer.Intent), outcome)
	return q.answer, nil
}

// runModel invokes the model and follows tool directives until the model
// answers without one or the iteration bound is reached.
func (o *Orchestrator) runModel(ctx context.Context, q *question) error {
	o.transition(q, StateModelInvoked)
	out, err := o.model.Complete(ctx, o.composer.Compose(q.prompt))
	if err != nil {
		return err
	}

	for {
		calls := tools.Parse(out)
		if len(calls) == 0 {
			break
		}
		if q.answer.Iterations >= o.maxIterations {
			q.answer.Forced = true
			o.logger.Warn("tool loop bound reached, finalizing", "session", q.sessionID, "iterations", q.answer.Iterations, "pending_calls", len(calls))
			break
		}
		q.answer.Iterations++
		o.transition(q, StateToolCallParsed, "iteration", q.answer.Iterations, "calls", len(calls))

		results := o.execute(ctx, q, calls)
		o.transition(q, StateToolExecuted, "results", len(results))

		q.prompt.Exchanges = append(q.prompt.Exchanges, composer.Exchange{ModelOutput: out, Results: results})
		q.prompt.Final = q.answer.Iterations >= o.maxIterations

		o.transition(q, StateModelReinvoked, "iteration", q.answer.Iterations)
		out, err = o.model.Complete(ctx, o.composer.Compose(q.prompt))
		if err != nil {
			return err
		}
	}

	q.answer.Text = tools.Strip(out)
	if q.answer.Text == "" {
		q.answer.Text = fallbackAnswer
	}
	return nil
}

// execute runs the calls of one round in order. Failures become textual
// results so the model can explain them.
func (o *Orchestrator) execute(ctx context.Context, q *question, calls []tools.Call) []composer.ToolResult {
	if len(calls) > maxCallsPerRound {
		o.logger.Warn("dropping excess tool calls", "session", q.sessionID, "requested", len(calls), "limit", maxCallsPerRound)
		calls = calls[:maxCallsPerRound]
	}

	results := make([]composer.ToolResult, 0, len(calls))
	for _, call := range calls {
		if o.dispatcher == nil {
			results = append(results, composer.ToolResult{Call: call, Output: serviceDownNotice, Failed: true})
			continue
		}
		res, err := o.dispatcher.Dispatch(ctx, call)
		if err != nil {
			results = append(results, composer.ToolResult{Call: call, Output: describeToolError(err), Failed: true})
			q.answer.ToolCalls = append(q.answer.ToolCalls, call)
			continue
		}
		results = append(results, composer.ToolResult{Call: res.Call, Output: res.Output})
		q.answer.ToolCalls = append(q.answer.ToolCalls, res.Call)
		q.answer.Sources = append(q.answer.Sources, res.Sources...)
	}
	q.results = append(q.results, results...)
	return results
}

// describeToolError turns a dispatch failure into text for the model.
func describeToolError(err error) string {
	var invalid *tools.InvalidToolCallError
	if errors.As(err, &invalid) {
		return fmt.Sprintf("invalid tool call: %s. Use only the listed tools and parameters.", invalid.Reason)
	}
	var execErr *tools.ToolExecutionError
	if errors.As(err, &execErr) {
		switch {
		case execErr.Timeout():
			return serviceDownNotice + " (the request timed out)"
		case execErr.StatusCode >= 400 && execErr.StatusCode < 500:
			return fmt.Sprintf("the data service could not find the requested data (status %d: %v)", execErr.StatusCode, execErr.Err)
		case execErr.StatusCode >= 500:
			return fmt.Sprintf("%s (status %d %s)", serviceDownNotice, execErr.StatusCode, http.StatusText(execErr.StatusCode))
		}
	}
	return serviceDownNotice
}

// finalize appends the question, any tool results and the answer to the
// session.
func (o *Orchestrator) finalize(sess *session.Session, q *question) {
	sess.Append(session.RoleUser, q.text)
	for _, r := range q.results {
		sess.Append(session.RoleToolResult, composer.FormatResult(r))
	}
	sess.Append(session.RoleAssistant, q.answer.Text)
	o.transition(q, StateFinalized, "intent", string(q.answer.Intent), "iterations", q.answer.Iterations, "forced", q.answer.Forced)
}

func (o *Orchestrator) documentNames() []string {
	if o.documents == nil {
		return nil
	}
	docs, err := o.documents.ListDocuments()
	if err != nil {
		o.logger.Warn("listing documents for prompt", "error", err)
		return nil
	}
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.Name)
	}
	return names
}
