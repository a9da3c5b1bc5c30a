package chat

import "regexp"

// Predicates classify an incoming message. Each may be nil, in which
// case the built-in default applies. They are injectable so deployments
// can tune routing without touching the orchestrator.
type Predicates struct {
	// ForceRetrieval marks messages that must hit the retrieval index
	// before answering.
	ForceRetrieval func(message string) bool

	// Complex marks messages worth the slower two-step plan-then-answer
	// path.
	Complex func(message string) bool

	// ModelQuestion marks meta questions about the assistant itself,
	// answered locally without retrieval.
	ModelQuestion func(message string) bool
}

var (
	forceRetrievalRe = regexp.MustCompile(`(?i)\b(doc|document|file|tab|section|page|paragraph|above|below|attached|upload)\b`)
	complexRe        = regexp.MustCompile(`(?i)\b(compare|contrast|summarize|analyze|explain why|difference|trade-?offs?|step[- ]by[- ]step)\b`)
	modelQuestionRe  = regexp.MustCompile(`(?i)\b(what|which)\b.{0,20}\b(model|llm|ai)\b|\bare you (gpt|an? (ai|llm|bot))\b`)
)

const complexLengthThreshold = 400

func defaultForceRetrieval(message string) bool {
	return forceRetrievalRe.MatchString(message)
}

func defaultComplex(message string) bool {
	return len(message) > complexLengthThreshold || complexRe.MatchString(message)
}

func defaultModelQuestion(message string) bool {
	return modelQuestionRe.MatchString(message)
}

// withDefaults fills nil predicates with the built-ins.
func (p Predicates) withDefaults() Predicates {
	if p.ForceRetrieval == nil {
		p.ForceRetrieval = defaultForceRetrieval
	}
	if p.Complex == nil {
		p.Complex = defaultComplex
	}
	if p.ModelQuestion == nil {
		p.ModelQuestion = defaultModelQuestion
	}
	return p
}
