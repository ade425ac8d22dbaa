// Package rag declares the knowledge-base retrieval boundary consumed by
// the workflow dataset-retrieval node and the agent's dataset tools. The
// vector store wiring behind it is out of scope here.
package rag

import (
	"context"

	"github.com/google/uuid"
)

// RetrievalStrategy selects how matching segments are searched.
type RetrievalStrategy string

const (
	StrategySemantic RetrievalStrategy = "semantic"
	StrategyFullText RetrievalStrategy = "full_text"
	StrategyHybrid   RetrievalStrategy = "hybrid"
)

// RetrievalConfig configures a retriever over a set of datasets.
type RetrievalConfig struct {
	DatasetIDs     []uuid.UUID       `json:"dataset_ids"`
	Strategy       RetrievalStrategy `json:"retrieval_strategy"`
	K              int               `json:"k"`
	ScoreThreshold float64           `json:"score"`
}

// Retriever runs a query against the configured datasets and returns the
// combined document text.
type Retriever interface {
	Invoke(ctx context.Context, query string) (string, error)
}

// RetrieverFactory builds a retriever for an account's datasets. The
// workflow runtime holds a factory so each dataset-retrieval node can bind
// its own dataset ids and strategy at compile time.
type RetrieverFactory interface {
	Retriever(accountID uuid.UUID, config RetrievalConfig) (Retriever, error)
}
