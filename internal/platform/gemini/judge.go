package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/phrazzld/triage-api/internal/completion"
	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/ratelimit"
)

// Judge implements the completion waterfall's judge boundary: given a
// task and gathered evidence, it asks the model whether the task looks
// finished.
type Judge struct {
	client  *Client
	limiter *ratelimit.Limiter
}

// NewJudge creates a judge over the shared client. Calls wait on the
// limiter so waterfall sweeps do not burst the API.
func NewJudge(client *Client, limiter *ratelimit.Limiter) *Judge {
	return &Judge{client: client, limiter: limiter}
}

// judgeReply is the JSON document expected inside the model's fenced
// code block.
type judgeReply struct {
	Completed  bool    `json:"completed"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence,omitempty"`
}

var judgeFencedRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// Judge asks the model for a verdict. A reply that cannot be parsed
// counts as no evidence, returned as (nil, nil); only transport-level
// failures surface as errors, and the waterfall treats those as no
// evidence too.
func (j *Judge) Judge(ctx context.Context, task *domain.Task, contextText, sourceLabel string) (*completion.Verdict, error) {
	if err := j.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	raw, err := j.client.generate(ctx, buildJudgePrompt(task, contextText, sourceLabel))
	if err != nil {
		return nil, err
	}

	body := raw
	if m := judgeFencedRegex.FindStringSubmatch(raw); m != nil {
		body = m[1]
	}

	var reply judgeReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &reply); err != nil {
		return nil, nil
	}

	return &completion.Verdict{
		Completed:  reply.Completed,
		Reason:     reply.Reason,
		Confidence: reply.Confidence,
		Evidence:   reply.Evidence,
	}, nil
}

func buildJudgePrompt(task *domain.Task, contextText, sourceLabel string) string {
	var b strings.Builder

	b.WriteString("You decide whether a task has already been finished, based on evidence.\n\n")
	fmt.Fprintf(&b, "Task: %s\n", task.Title)
	if task.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", task.Description)
	}
	fmt.Fprintf(&b, "Evidence source: %s\n\nEvidence:\n%s\n", sourceLabel, contextText)
	b.WriteString("\nReply with a fenced JSON block: ")
	b.WriteString(`{"completed": bool, "reason": string, "confidence": number, "evidence": string}.`)
	b.WriteString("\nSet completed to false when the evidence is inconclusive.")

	return b.String()
}
