package gemini

import "context"

// Extractor implements the extraction pipeline's LLM boundary. Rate
// limiting is owned by the pipeline, which serializes calls within a
// batch.
type Extractor struct {
	client *Client
}

// NewExtractor creates an extractor over the shared client.
func NewExtractor(client *Client) *Extractor {
	return &Extractor{client: client}
}

// Extract sends the prompt and returns the raw model reply. The
// pipeline parses the fenced JSON task list out of it; any reply shape
// problem degrades there, not here.
func (e *Extractor) Extract(ctx context.Context, prompt string) (string, error) {
	return e.client.generate(ctx, prompt)
}
