package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/yourorg/catalog-sync/internal/nlsql"
)

// SQLRetriever answers questions through generated SQL.
// *nlsql.Retriever satisfies it.
type SQLRetriever interface {
	Retrieve(ctx context.Context, question string) (*nlsql.Result, error)
}

type SQLDeps struct {
	Retriever SQLRetriever
}

type SQLRequest struct {
	Query string `json:"query"`
}

type SQLResponse struct {
	Results  string `json:"results"`
	SQLQuery string `json:"sql_query"`
}

func RegisterSQL(r chi.Router, d SQLDeps) {
	r.Post("/sql_retrieval", func(w http.ResponseWriter, req *http.Request) {
		var body SQLRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			render.Status(req, http.StatusBadRequest)
			render.JSON(w, req, map[string]any{"error": "invalid_json", "detail": err.Error()})
			return
		}
		if body.Query == "" {
			render.Status(req, http.StatusBadRequest)
			render.JSON(w, req, map[string]any{"error": "query_required", "detail": "query is required"})
			return
		}

		res, err := d.Retriever.Retrieve(req.Context(), body.Query)
		if errors.Is(err, nlsql.ErrNoResult) {
			render.Status(req, http.StatusNotFound)
			render.JSON(w, req, map[string]any{"error": "not_found", "detail": "no matching result"})
			return
		}
		if err != nil {
			slog.Warn("sql retrieval failed", "err", err)
			render.Status(req, http.StatusInternalServerError)
			render.JSON(w, req, map[string]any{"error": "retrieval_error"})
			return
		}

		render.JSON(w, req, SQLResponse{
			Results:  res.Rows.Format(),
			SQLQuery: res.SQL,
		})
	})
}
