// Package chunk turns raw document text into retrieval-sized pieces.
//
// The pipeline has three stages:
//
//	Normalize     canonicalize line endings and whitespace so identical
//	              logical content always produces identical bytes
//	SplitSections walk heading markers and emit ordered sections, each
//	              carrying its full heading path
//	Build         greedily pack section paragraphs into token-budgeted
//	              chunks with trailing overlap
//
// Token counts are estimated with a fixed characters-per-token ratio, not a
// real tokenizer. The budgets are tuned for retrieval recall, not for exact
// model limits, so the approximation is deliberate.
package chunk
