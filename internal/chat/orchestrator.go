// Package chat answers document questions with retrieval-augmented
// generation and source attribution.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docassist/docassist/internal/assist"
	"github.com/docassist/docassist/internal/log"
	"github.com/docassist/docassist/internal/store"
)

// ErrEmptyMessage reports a blank chat message.
var ErrEmptyMessage = errors.New("chat: empty message")

const (
	maxPlanPassages = 6

	defaultSystemPrompt = "You are a document assistant. Answer using the " +
		"synchronized document content when it is relevant, and say so " +
		"plainly when the documents do not cover the question."

	planInstructions = "Find the passages most relevant to the user's " +
		"question in the retrieval index. Reply ONLY with a bullet list " +
		"(lines starting with \"- \") of up to six short verbatim passages. " +
		"No commentary."

	answerDirective = "Answer the question using ONLY the passages below. " +
		"If information is missing, say so."
)

// Retrieval scope descriptors reported on results.
const (
	scopeDocument = "document"
	scopeFile     = "file"
)

// Options tunes the orchestrator.
type Options struct {
	Model           string
	MaxOutputTokens int
	MaxTurnsPerDoc  int

	// ForceFileSearch requires a retrieval pass for messages that
	// reference the document.
	ForceFileSearch bool

	// TwoStepEnabled routes complex messages through a plan-then-answer
	// sequence.
	TwoStepEnabled bool

	// HistoryEnabled records the exchange in chat history.
	HistoryEnabled bool

	// SystemPrompt overrides the built-in base instructions.
	SystemPrompt string
}

// Request is one incoming chat message.
type Request struct {
	Message string

	// FocusSHA256 narrows retrieval to one synchronized source's
	// file-scoped index. Unknown hashes and sources synchronized without
	// file scope fall back silently to the document index.
	FocusSHA256 string
}

// Result is the generated answer with attribution.
type Result struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Model   string   `json:"model"`
	Scope   string   `json:"scope"`
	Forced  bool     `json:"forcedRetrieval"`
	TwoStep bool     `json:"twoStep"`
}

// Orchestrator runs the retrieval-augmented chat flow.
type Orchestrator struct {
	store  *store.Store
	client assist.Client
	opts   Options
	preds  Predicates
	logger log.Logger
}

// NewOrchestrator creates an Orchestrator. Nil predicate fields get the
// built-in defaults.
func NewOrchestrator(st *store.Store, client assist.Client, opts Options, preds Predicates, logger log.Logger) (*Orchestrator, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{
		store:  st,
		client: client,
		opts:   opts,
		preds:  preds.withDefaults(),
		logger: logger,
	}, nil
}

// Chat answers one message in the document's conversation.
func (o *Orchestrator) Chat(ctx context.Context, sess *store.Session, req Request) (*Result, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	model := sess.Model
	if model == "" {
		model = o.opts.Model
	}

	// Meta questions about the assistant never need retrieval.
	if o.preds.ModelQuestion(message) {
		answer := fmt.Sprintf("This assistant runs on the %s model.", model)
		o.recordExchange(ctx, sess.DocID, message, answer)
		return &Result{Answer: answer, Model: model, Scope: scopeDocument}, nil
	}

	instructions := o.buildInstructions(sess)
	scopeIDs, scope := o.retrievalScope(ctx, sess, req.FocusSHA256)
	forced := o.opts.ForceFileSearch && o.preds.ForceRetrieval(message)

	result := &Result{Model: model, Scope: scope, Forced: forced}

	var resp *assist.Response
	var cited []assist.Annotation

	if o.opts.TwoStepEnabled && o.preds.Complex(message) {
		if planResp := o.plan(ctx, sess, model, message, scopeIDs); planResp != nil {
			result.TwoStep = true
			answered, err := o.answerFromPassages(ctx, sess, model, message, instructions, planResp.Text)
			if err != nil {
				return nil, err
			}
			resp = answered
			// Citations come from the plan step; the answer call has no
			// retrieval tool to cite from.
			cited = planResp.Annotations
		}
	}

	if resp == nil {
		var err error
		resp, err = o.client.Respond(ctx, assist.RespondRequest{
			Model:           model,
			ConversationID:  sess.ConversationID,
			Instructions:    instructions,
			Input:           message,
			MaxOutputTokens: o.opts.MaxOutputTokens,
			IndexIDs:        scopeIDs,
			ForceRetrieval:  forced,
		})
		if err != nil {
			return nil, fmt.Errorf("generating answer: %w", err)
		}
		cited = resp.Annotations
	}

	result.Answer = resp.Text
	result.Sources = extractSources(cited, o.metaResolver(ctx, sess.DocID))

	o.recordExchange(ctx, sess.DocID, message, resp.Text)
	o.logger.Info("chat answered",
		"doc_id", sess.DocID, "scope", scope, "forced", forced,
		"two_step", result.TwoStep, "sources", len(result.Sources))
	return result, nil
}

// buildInstructions layers the base prompt, the rolling content summary,
// and the user-provided instructions, each under its own label.
func (o *Orchestrator) buildInstructions(sess *store.Session) string {
	base := o.opts.SystemPrompt
	if base == "" {
		base = defaultSystemPrompt
	}
	parts := []string{base}
	if summary := strings.TrimSpace(sess.Summary); summary != "" {
		parts = append(parts, "Project memory (auto-summary):\n"+summary)
	}
	if custom := strings.TrimSpace(sess.Instructions); custom != "" {
		parts = append(parts, "Project instructions (user-provided):\n"+custom)
	}
	return strings.Join(parts, "\n\n---\n")
}

// retrievalScope resolves the focus hash to its source's file-scoped
// index. Unresolvable focus falls back silently to the document index.
func (o *Orchestrator) retrievalScope(ctx context.Context, sess *store.Session, sha256 string) ([]string, string) {
	if sha256 != "" {
		for _, kind := range store.ParentKinds {
			u, err := o.store.FindUnit(ctx, sess.DocID, kind, sha256)
			if err != nil {
				continue
			}
			if u.FileIndexID != "" {
				return []string{u.FileIndexID}, scopeFile
			}
			break
		}
		o.logger.Debug("focus not scopeable, using document scope",
			"doc_id", sess.DocID, "sha256", sha256)
	}
	if sess.IndexID == "" {
		return nil, scopeDocument
	}
	return []string{sess.IndexID}, scopeDocument
}

// plan runs the retrieval-only first step of the two-step flow. It works
// outside the conversation so planning noise never enters the transcript.
// Failures degrade to the single-step flow.
func (o *Orchestrator) plan(ctx context.Context, sess *store.Session, model, message string, scopeIDs []string) *assist.Response {
	resp, err := o.client.Respond(ctx, assist.RespondRequest{
		Model:           model,
		Instructions:    planInstructions,
		Input:           message,
		MaxOutputTokens: o.opts.MaxOutputTokens,
		IndexIDs:        scopeIDs,
		ForceRetrieval:  true,
	})
	if err != nil {
		o.logger.Warn("plan step failed, answering single-step",
			"doc_id", sess.DocID, "error", err)
		return nil
	}
	return resp
}

// answerFromPassages runs the second step of the two-step flow: a call
// with no retrieval tool at all, answering strictly from the planned
// passages.
func (o *Orchestrator) answerFromPassages(ctx context.Context, sess *store.Session, model, message, instructions, planText string) (*assist.Response, error) {
	block := "(no passages returned)"
	if passages := parsePassages(planText); len(passages) > 0 {
		block = "- " + strings.Join(passages, "\n- ")
	}
	input := answerDirective + "\n\nPASSAGES:\n" + block + "\n\nQUESTION:\n" + message

	resp, err := o.client.Respond(ctx, assist.RespondRequest{
		Model:           model,
		ConversationID:  sess.ConversationID,
		Instructions:    instructions,
		Input:           input,
		MaxOutputTokens: o.opts.MaxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}
	return resp, nil
}

// parsePassages pulls "- " bullets out of a plan reply, capped at
// maxPlanPassages.
func parsePassages(text string) []string {
	var passages []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(line, "- ")
		if !ok {
			continue
		}
		rest = strings.TrimSpace(rest)
		if rest == "" {
			continue
		}
		passages = append(passages, rest)
		if len(passages) == maxPlanPassages {
			break
		}
	}
	return passages
}

// metaResolver resolves cited file IDs against the local unit rows.
func (o *Orchestrator) metaResolver(ctx context.Context, docID string) func(fileID string) (sourceMeta, bool) {
	return func(fileID string) (sourceMeta, bool) {
		u, err := o.store.FindUnitByFileID(ctx, docID, fileID)
		if err != nil {
			return sourceMeta{}, false
		}
		meta := sourceMeta{Filename: u.Filename, Kind: u.Kind}
		if u.ParentSHA256 != "" {
			// Chunk rows carry their section path in Title; the parent
			// has the human title.
			meta.Title = u.Title
			if parent, perr := o.store.FindUnit(ctx, docID, parentKind(u.Kind), u.ParentSHA256); perr == nil && parent.Title != "" {
				meta.Title = parent.Title
			}
		} else {
			meta.Title = u.Title
		}
		return meta, true
	}
}

func parentKind(chunkKind string) string {
	switch chunkKind {
	case store.KindDocChunk:
		return store.KindDoc
	case store.KindTabChunk:
		return store.KindTab
	default:
		return chunkKind
	}
}

// recordExchange appends both halves of the turn to history,
// best-effort.
func (o *Orchestrator) recordExchange(ctx context.Context, docID, question, answer string) {
	if !o.opts.HistoryEnabled {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := o.store.AppendMessage(ctx, docID, store.RoleUser, question, o.opts.MaxTurnsPerDoc); err != nil {
		o.logger.Warn("recording question failed", "doc_id", docID, "error", err)
		return
	}
	if err := o.store.AppendMessage(ctx, docID, store.RoleAssistant, answer, o.opts.MaxTurnsPerDoc); err != nil {
		o.logger.Warn("recording answer failed", "doc_id", docID, "error", err)
	}
}
