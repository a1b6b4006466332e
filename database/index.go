package database

import (
	"context"
	"fmt"
	"time"

	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
)

// IndexType is a pgvector approximate nearest neighbour index method.
type IndexType string

const (
	IndexHNSW    IndexType = "hnsw"
	IndexIVFFlat IndexType = "ivfflat"
)

// operatorClass returns the pgvector operator class matching the similarity metric.
func operatorClass(metric model.Metric) string {
	switch metric {
	case model.MetricEuclidean:
		return "vector_l2_ops"
	case model.MetricDotProduct:
		return "vector_ip_ops"
	default:
		return "vector_cosine_ops"
	}
}

// ChangeIndexType rebuilds the vector index with the given method and metric.
// params: optional parameters for index creation
//   - For HNSW: "m" (int, default 16), "ef_construction" (int, default 64)
//   - For IVFFlat: "lists" (int, default 100)
func (h *EmbeddingsDBHandler) ChangeIndexType(ctx context.Context, indexType IndexType, metric model.Metric, params map[string]int) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var createIndexSQL string
	opClass := operatorClass(metric)

	switch indexType {
	case IndexHNSW:
		m := 16
		efConstruction := 64
		if v, ok := params["m"]; ok {
			m = v
		}
		if v, ok := params["ef_construction"]; ok {
			efConstruction = v
		}

		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_embeddings_embedding ON embeddings USING hnsw (embedding %s) WITH (m = %d, ef_construction = %d);`,
			opClass, m, efConstruction,
		)

	case IndexIVFFlat:
		lists := 100
		if v, ok := params["lists"]; ok {
			lists = v
		}

		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_embeddings_embedding ON embeddings USING ivfflat (embedding %s) WITH (lists = %d);`,
			opClass, lists,
		)

	default:
		return helper.NewError("change index type", fmt.Errorf("%w: unsupported index type %q (use 'hnsw' or 'ivfflat')", model.ErrValidation, indexType))
	}

	_, err := h.db.Instance.ExecContext(ctx, `DROP INDEX IF EXISTS idx_embeddings_embedding;`)
	if err != nil {
		return helper.NewError("drop index", err)
	}

	h.db.Logger.Info("Dropped existing vector index")

	_, err = h.db.Instance.ExecContext(ctx, createIndexSQL)
	if err != nil {
		return helper.NewError("create index", err)
	}

	h.db.Logger.Info("Created vector index", "type", indexType, "operator_class", opClass, "params", params)

	return nil
}
