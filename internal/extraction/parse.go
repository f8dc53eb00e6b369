package extraction

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ExtractedDependency is a dependency proposed by the extractor,
// referencing the depended-on task by free-text title. Resolution to a
// task ID happens in ResolveTaskID.
type ExtractedDependency struct {
	Title      string  `json:"title"`
	Type       string  `json:"type,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// ExtractedSimilar is an optional similarity hint for operator review.
type ExtractedSimilar struct {
	Title  string `json:"title"`
	Status string `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ExtractedTask is one task proposed by the extractor.
type ExtractedTask struct {
	Title        string                `json:"title"`
	Description  string                `json:"description,omitempty"`
	Priority     string                `json:"priority,omitempty"`
	WorkType     string                `json:"work_type,omitempty"`
	Confidence   float64               `json:"confidence,omitempty"`
	DueDate      string                `json:"due_date,omitempty"`
	SimilarTo    *ExtractedSimilar     `json:"similar_to,omitempty"`
	Dependencies []ExtractedDependency `json:"dependencies,omitempty"`
}

// taskListReply is the JSON document expected inside the model's fenced
// code block.
type taskListReply struct {
	Tasks []ExtractedTask `json:"tasks"`
}

// fencedBlockRegex matches a fenced code block, optionally tagged json.
var fencedBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ParseTaskList extracts the fenced JSON block from an LLM reply and
// decodes it into the proposed task list. Malformed or unparsable
// replies degrade to an empty list rather than an error: a bad reply
// costs one extraction, never a batch.
func ParseTaskList(raw string) []ExtractedTask {
	body := raw

	if m := fencedBlockRegex.FindStringSubmatch(raw); m != nil {
		body = m[1]
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	var reply taskListReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		return nil
	}

	// Proposals without a title are unusable downstream.
	tasks := reply.Tasks[:0]
	for _, t := range reply.Tasks {
		if strings.TrimSpace(t.Title) == "" {
			continue
		}
		tasks = append(tasks, t)
	}

	return tasks
}
