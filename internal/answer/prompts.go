package answer

import (
	"fmt"
	"time"
)

// Mode selects the answering strategy for one turn. The choice is made once,
// after retrieval, and each variant carries its instruction templates as
// data.
type Mode string

const (
	// ModeCited answers from retrieved source material with citations.
	ModeCited Mode = "cited"

	// ModeNoDocuments answers from conversation history and general
	// knowledge; nothing was retrieved, so no citations may be fabricated.
	ModeNoDocuments Mode = "no_documents"
)

// modeSpec is the per-mode prompt material.
type modeSpec struct {
	systemTemplate string // fmt template: %s = serialized chat history
	instruction    string // final user-turn instruction
	passagesTitle  string // header for the serialized passages section
}

var modeSpecs = map[Mode]modeSpec{
	ModeCited: {
		systemTemplate: `You are a knowledgeable assistant answering questions from the user's personal knowledge base.

Conversation so far:
%s

You will be given source material retrieved from the knowledge base. Ground your answer in that material: quote or paraphrase it accurately, and cite the source name from each document's metadata whenever you use its content. Stay conversational. If the sources do not cover part of the question, say so rather than inventing support.`,
		instruction:   "Please provide a detailed, comprehensive answer to the user's question using the information from their personal knowledge sources. Make sure to cite all information appropriately and engage in a conversational manner.",
		passagesTitle: "Source material from your personal knowledge base",
	},
	ModeNoDocuments: {
		systemTemplate: `You are a knowledgeable assistant.

Conversation so far:
%s

No source material was retrieved for this question. Answer from the conversation history and your general knowledge. Stay conversational, and do not fabricate citations or pretend to quote documents.`,
		instruction: "Please provide a helpful answer to the user's question based on our conversation history and your general knowledge. Engage in a conversational manner.",
	},
}

// selectMode picks the answering strategy from what retrieval produced.
func selectMode(passageCount int) Mode {
	if passageCount > 0 {
		return ModeCited
	}
	return ModeNoDocuments
}

// rewriteSystemPrompt is the query-optimization instruction for the
// rewriter. The reformulated query must be a single concise string that
// preserves the user's intent.
func rewriteSystemPrompt(history string) string {
	if history == "" {
		history = "No prior conversation history is available."
	}
	return fmt.Sprintf(`Today's date: %s
You are a highly skilled AI assistant specializing in query optimization for advanced research.
Your primary objective is to transform a user's initial query into a highly effective search query.
This reformulated query will be used to retrieve information from diverse data sources.

Chat History Context:
%s
If chat history is provided, analyze it to understand the user's evolving information needs and the broader context of their request. Use this understanding to refine the current query, ensuring it builds upon or clarifies previous interactions.

Your reformulated query should:
1. Enhance specificity and detail: add precision to narrow the search focus effectively.
2. Resolve ambiguities: clarify vague terms; orient multi-meaning terms toward the most likely reading given the context.
3. Expand key concepts: incorporate relevant synonyms, related terms, and alternative phrasings for core concepts.
4. Deconstruct complex questions: rephrase multifaceted questions so each aspect is clearly searchable, while keeping a single coherent query string.
5. Maintain user intent: stay true to the original query; do not introduce new topics or shift the focus.

Constraints:
- Be as concise as possible; focus on essential keywords, entities, and concepts.
- Return ONLY the reformulated query itself, with no explanations, introductory phrases, or surrounding formatting.`,
		time.Now().Format("2006-01-02"), history)
}
