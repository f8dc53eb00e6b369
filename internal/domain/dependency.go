package domain

import (
	"time"

	"github.com/google/uuid"
)

// DependencyType classifies an edge between two tasks.
type DependencyType string

// Possible dependency type values
const (
	// DependencyBlocks means the depended-on task blocks the dependent.
	DependencyBlocks DependencyType = "blocks"

	// DependencyRelated is an informational link with no blocking
	// semantics.
	DependencyRelated DependencyType = "related"
)

// DependencySource records whether an edge was proposed by extraction or
// created by an operator.
type DependencySource string

// Possible dependency source values
const (
	DependencySourceAuto   DependencySource = "auto"
	DependencySourceManual DependencySource = "manual"
)

// Dependency is a directed edge: TaskID depends on DependsOnTaskID.
// At most one edge exists per ordered (TaskID, DependsOnTaskID) pair,
// enforced by a unique index; self-loops are rejected at construction.
//
// The graph is not guaranteed acyclic. Nothing downstream assumes
// acyclicity, so cycles are tolerated rather than detected.
type Dependency struct {
	ID              uuid.UUID        `json:"id"`
	TaskID          uuid.UUID        `json:"task_id"`
	DependsOnTaskID uuid.UUID        `json:"depends_on_task_id"`
	DependencyType  DependencyType   `json:"dependency_type"`
	Confidence      float64          `json:"confidence,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	SourceType      DependencySource `json:"source_type"`
	CreatedAt       time.Time        `json:"created_at"`
}

// NewDependency creates an edge from taskID to dependsOnTaskID.
func NewDependency(
	taskID, dependsOnTaskID uuid.UUID,
	depType DependencyType,
	confidence float64,
	reason string,
	source DependencySource,
) (*Dependency, error) {
	if taskID == uuid.Nil || dependsOnTaskID == uuid.Nil {
		return nil, ErrInvalidID
	}

	if taskID == dependsOnTaskID {
		return nil, ErrSelfDependency
	}

	if depType != DependencyBlocks && depType != DependencyRelated {
		return nil, ErrInvalidDependencyType
	}

	return &Dependency{
		ID:              uuid.New(),
		TaskID:          taskID,
		DependsOnTaskID: dependsOnTaskID,
		DependencyType:  depType,
		Confidence:      confidence,
		Reason:          reason,
		SourceType:      source,
		CreatedAt:       time.Now().UTC(),
	}, nil
}
