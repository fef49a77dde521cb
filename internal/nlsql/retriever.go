// Package nlsql turns natural-language questions into Elasticsearch SQL with
// one bounded self-correction round: a statement is generated and executed,
// and on failure the failing statement plus its error are fed back to the
// model for exactly one corrected statement. Two failed executions are
// terminal.
package nlsql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yourorg/catalog-sync/internal/ai"
	"github.com/yourorg/catalog-sync/internal/search"
)

// ErrNoResult reports that both the generated and the corrected statement
// failed to produce rows.
var ErrNoResult = errors.New("nlsql: no matching result")

// State tracks where a question is in the correction lifecycle.
type State string

const (
	StateGenerated State = "GENERATED"
	StateCorrected State = "CORRECTED"
	StateValidated State = "VALIDATED"
	StateFailed    State = "FAILED"
)

// QueryExecutor runs one SQL statement against the search index.
// *search.Indexer satisfies it.
type QueryExecutor interface {
	SQLQuery(ctx context.Context, query string) (*search.SQLResult, error)
}

// Result is the outcome of one retrieval.
type Result struct {
	SQL      string
	Rows     *search.SQLResult
	State    State
	Attempts int
}

type Retriever struct {
	generator ai.TextGenerator
	executor  QueryExecutor
	schema    Schema
	logger    *slog.Logger
}

func NewRetriever(generator ai.TextGenerator, executor QueryExecutor, schema Schema) *Retriever {
	return &Retriever{
		generator: generator,
		executor:  executor,
		schema:    schema,
		logger:    slog.Default().With("component", "nlsql", "table", schema.Table),
	}
}

// Retrieve answers the question. At most two statements are executed: the
// generated one and, when it fails or matches nothing, one corrected
// statement. A second failure returns ErrNoResult with the final SQL in the
// result for diagnostics.
func (r *Retriever) Retrieve(ctx context.Context, question string) (*Result, error) {
	stmt, err := r.generate(ctx, r.schema.generationPrompt(question))
	if err != nil {
		return nil, err
	}
	res := &Result{SQL: stmt, State: StateGenerated}

	rows, execErr := r.execute(ctx, res)
	if execErr == nil {
		res.State = StateValidated
		res.Rows = rows
		return res, nil
	}
	r.logger.Warn("statement failed, correcting", "sql", stmt, "err", execErr)

	corrected, err := r.generate(ctx, r.schema.correctionPrompt(question, stmt, execErr.Error()))
	if err != nil {
		return nil, err
	}
	res.SQL = corrected
	res.State = StateCorrected

	rows, execErr = r.execute(ctx, res)
	if execErr == nil {
		res.State = StateValidated
		res.Rows = rows
		return res, nil
	}
	r.logger.Warn("corrected statement failed", "sql", corrected, "err", execErr)

	res.State = StateFailed
	return res, ErrNoResult
}

func (r *Retriever) generate(ctx context.Context, prompt string) (string, error) {
	raw, err := r.generator.GenerateText(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("nlsql: generate statement: %w", err)
	}
	return cleanStatement(raw), nil
}

// execute runs the result's current SQL. A statement that runs but matches
// nothing counts as a failure so the correction round can rephrase it.
func (r *Retriever) execute(ctx context.Context, res *Result) (*search.SQLResult, error) {
	res.Attempts++
	rows, err := r.executor.SQLQuery(ctx, res.SQL)
	if err != nil {
		return nil, err
	}
	if len(rows.Rows) == 0 {
		return nil, errors.New("the query executed but returned no rows")
	}
	return rows, nil
}
