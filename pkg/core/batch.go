package core

import (
	"context"

	"github.com/leafmind/leafmind-go/pkg/memory"
)

// BatchLearnInput is one item of a batch learn.
type BatchLearnInput struct {
	// Content is the concept payload.
	Content string

	// Options configure this item like a single Learn call.
	Options []LearnOption
}

// BatchLearnOutcome is the per-item result of a batch learn.
type BatchLearnOutcome struct {
	// Concept is the stored concept on success.
	Concept *memory.Concept

	// Error is the per-item failure, nil on success.
	Error error
}

// BatchLearn learns a batch of concepts, returning one outcome per input
// in order. Item failures do not abort the batch.
func (pg *PersistentGraph) BatchLearn(ctx context.Context, inputs []BatchLearnInput) []BatchLearnOutcome {
	outcomes := make([]BatchLearnOutcome, len(inputs))
	for i, input := range inputs {
		concept, err := pg.Learn(ctx, input.Content, input.Options...)
		outcomes[i] = BatchLearnOutcome{Concept: concept, Error: err}
	}
	return outcomes
}

// BatchAssociateInput is one item of a batch associate.
type BatchAssociateInput struct {
	// From is the source concept.
	From memory.ConceptID

	// To is the target concept.
	To memory.ConceptID

	// Options configure this item like a single Associate call.
	Options []AssociateOption
}

// BatchAssociateOutcome is the per-item result of a batch associate.
type BatchAssociateOutcome struct {
	// Edge is the resulting edge on success.
	Edge *memory.SynapticEdge

	// Error is the per-item failure, nil on success.
	Error error
}

// BatchAssociate creates a batch of associations, returning one outcome
// per input in order. Item failures do not abort the batch.
func (pg *PersistentGraph) BatchAssociate(ctx context.Context, inputs []BatchAssociateInput) []BatchAssociateOutcome {
	outcomes := make([]BatchAssociateOutcome, len(inputs))
	for i, input := range inputs {
		edge, err := pg.Associate(ctx, input.From, input.To, input.Options...)
		outcomes[i] = BatchAssociateOutcome{Edge: edge, Error: err}
	}
	return outcomes
}
