package sqlstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"dugtong/internal/query"
	"dugtong/internal/rowmap"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// RemoteExecutor talks to a hosted SQLite-compatible database over its HTTP pipeline API
// (POST /v2/pipeline, bearer auth token).
type RemoteExecutor struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewRemoteExecutor creates a client for the database at baseURL.
func NewRemoteExecutor(baseURL, authToken string, logger *zap.Logger) *RemoteExecutor {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(30*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if authToken != "" {
		client.SetAuthToken(authToken)
	}
	return &RemoteExecutor{httpClient: client, logger: logger}
}

var _ Executor = (*RemoteExecutor)(nil)

func (e *RemoteExecutor) Dialect() query.Dialect { return query.DialectSQLite }

// --- wire types ---

type hranaValue struct {
	Type   string `json:"type"`
	Value  any    `json:"value,omitempty"`
	Base64 string `json:"base64,omitempty"`
}

type hranaStmt struct {
	SQL      string       `json:"sql"`
	Args     []hranaValue `json:"args,omitempty"`
	WantRows bool         `json:"want_rows"`
}

type hranaCondition struct {
	Type string          `json:"type"`
	Step *int            `json:"step,omitempty"`
	Cond *hranaCondition `json:"cond,omitempty"`
}

type hranaBatchStep struct {
	Condition *hranaCondition `json:"condition,omitempty"`
	Stmt      hranaStmt       `json:"stmt"`
}

type hranaBatch struct {
	Steps []hranaBatchStep `json:"steps"`
}

type hranaRequest struct {
	Type  string      `json:"type"`
	Stmt  *hranaStmt  `json:"stmt,omitempty"`
	Batch *hranaBatch `json:"batch,omitempty"`
}

type hranaPipeline struct {
	Baton    *string        `json:"baton"`
	Requests []hranaRequest `json:"requests"`
}

type hranaError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type hranaStmtResult struct {
	Cols []struct {
		Name string `json:"name"`
	} `json:"cols"`
	Rows             [][]hranaValue `json:"rows"`
	AffectedRowCount int64          `json:"affected_row_count"`
	LastInsertRowID  *string        `json:"last_insert_rowid"`
}

type hranaResult struct {
	Type     string      `json:"type"`
	Error    *hranaError `json:"error,omitempty"`
	Response *struct {
		Type   string          `json:"type"`
		Result json.RawMessage `json:"result"`
	} `json:"response,omitempty"`
}

type hranaBatchResult struct {
	StepResults []*hranaStmtResult `json:"step_results"`
	StepErrors  []*hranaError      `json:"step_errors"`
}

type hranaPipelineResponse struct {
	Results []hranaResult `json:"results"`
}

// --- Executor ---

func (e *RemoteExecutor) Query(ctx context.Context, sql string, args ...any) (*rowmap.ResultSet, error) {
	res, err := e.execute(ctx, sql, args, true)
	if err != nil {
		return nil, err
	}
	return toResultSet(res), nil
}

func (e *RemoteExecutor) Exec(ctx context.Context, sql string, args ...any) (Result, error) {
	res, err := e.execute(ctx, sql, args, false)
	if err != nil {
		return Result{}, err
	}
	return toResult(res), nil
}

// WithTx buffers the statements fn executes and sends them as one conditional batch
// wrapped in BEGIN/COMMIT, rolling back if any step fails. Queries issued inside fn run
// immediately and do not see the buffered writes.
func (e *RemoteExecutor) WithTx(ctx context.Context, fn func(tx Executor) error) error {
	tx := &remoteTx{parent: e}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.stmts) == 0 {
		return nil
	}
	return e.runBatch(ctx, tx.stmts)
}

func (e *RemoteExecutor) execute(ctx context.Context, sql string, args []any, wantRows bool) (*hranaStmtResult, error) {
	stmt, err := buildStmt(sql, args, wantRows)
	if err != nil {
		return nil, err
	}
	results, err := e.pipeline(ctx, []hranaRequest{{Type: "execute", Stmt: &stmt}, {Type: "close"}})
	if err != nil {
		return nil, err
	}
	first := results[0]
	if first.Type == "error" || first.Error != nil {
		return nil, remoteError(first.Error)
	}
	if first.Response == nil {
		return nil, fmt.Errorf("remote sql: empty response")
	}
	var out hranaStmtResult
	if err := json.Unmarshal(first.Response.Result, &out); err != nil {
		return nil, fmt.Errorf("remote sql: decode result: %w", err)
	}
	return &out, nil
}

func (e *RemoteExecutor) runBatch(ctx context.Context, stmts []hranaStmt) error {
	steps := make([]hranaBatchStep, 0, len(stmts)+3)
	steps = append(steps, hranaBatchStep{Stmt: hranaStmt{SQL: "BEGIN"}})
	for _, s := range stmts {
		prev := len(steps) - 1
		steps = append(steps, hranaBatchStep{
			Condition: &hranaCondition{Type: "ok", Step: &prev},
			Stmt:      s,
		})
	}
	prev := len(steps) - 1
	steps = append(steps, hranaBatchStep{
		Condition: &hranaCondition{Type: "ok", Step: &prev},
		Stmt:      hranaStmt{SQL: "COMMIT"},
	})
	commit := len(steps) - 1
	steps = append(steps, hranaBatchStep{
		Condition: &hranaCondition{Type: "not", Cond: &hranaCondition{Type: "ok", Step: &commit}},
		Stmt:      hranaStmt{SQL: "ROLLBACK"},
	})

	results, err := e.pipeline(ctx, []hranaRequest{{Type: "batch", Batch: &hranaBatch{Steps: steps}}, {Type: "close"}})
	if err != nil {
		return err
	}
	first := results[0]
	if first.Type == "error" || first.Error != nil {
		return remoteError(first.Error)
	}
	if first.Response == nil {
		return fmt.Errorf("remote sql: empty batch response")
	}
	var br hranaBatchResult
	if err := json.Unmarshal(first.Response.Result, &br); err != nil {
		return fmt.Errorf("remote sql: decode batch result: %w", err)
	}
	for i, stepErr := range br.StepErrors {
		if stepErr != nil {
			return fmt.Errorf("remote sql: transaction step %d: %w", i, remoteError(stepErr))
		}
	}
	return nil
}

func (e *RemoteExecutor) pipeline(ctx context.Context, reqs []hranaRequest) ([]hranaResult, error) {
	var out hranaPipelineResponse
	resp, err := e.httpClient.R().
		SetContext(ctx).
		SetBody(hranaPipeline{Requests: reqs}).
		SetResult(&out).
		Post("/v2/pipeline")
	if err != nil {
		e.logger.Error("remote sql request failed", zap.Error(err))
		return nil, fmt.Errorf("remote sql: %w", err)
	}
	if resp.IsError() {
		e.logger.Error("remote sql returned error status",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", truncate(resp.String(), 512)),
		)
		return nil, fmt.Errorf("remote sql: http %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	if len(out.Results) == 0 {
		return nil, fmt.Errorf("remote sql: no results in response")
	}
	return out.Results, nil
}

type remoteTx struct {
	parent *RemoteExecutor
	stmts  []hranaStmt
}

func (t *remoteTx) Dialect() query.Dialect { return query.DialectSQLite }

func (t *remoteTx) Query(ctx context.Context, sql string, args ...any) (*rowmap.ResultSet, error) {
	return t.parent.Query(ctx, sql, args...)
}

func (t *remoteTx) Exec(_ context.Context, sql string, args ...any) (Result, error) {
	stmt, err := buildStmt(sql, args, false)
	if err != nil {
		return Result{}, err
	}
	t.stmts = append(t.stmts, stmt)
	return Result{}, nil
}

func (t *remoteTx) WithTx(_ context.Context, fn func(tx Executor) error) error {
	return fn(t)
}

// --- value encoding ---

func buildStmt(sql string, args []any, wantRows bool) (hranaStmt, error) {
	stmt := hranaStmt{SQL: sql, WantRows: wantRows}
	for i, a := range normalizeArgs(args, false) {
		v, err := encodeValue(a)
		if err != nil {
			return hranaStmt{}, fmt.Errorf("remote sql: arg %d: %w", i, err)
		}
		stmt.Args = append(stmt.Args, v)
	}
	return stmt, nil
}

func encodeValue(a any) (hranaValue, error) {
	switch v := a.(type) {
	case nil:
		return hranaValue{Type: "null"}, nil
	case string:
		return hranaValue{Type: "text", Value: v}, nil
	case []byte:
		return hranaValue{Type: "blob", Base64: base64.StdEncoding.EncodeToString(v)}, nil
	case int:
		return hranaValue{Type: "integer", Value: strconv.FormatInt(int64(v), 10)}, nil
	case int32:
		return hranaValue{Type: "integer", Value: strconv.FormatInt(int64(v), 10)}, nil
	case int64:
		return hranaValue{Type: "integer", Value: strconv.FormatInt(v, 10)}, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return hranaValue{}, fmt.Errorf("unsupported float %v", v)
		}
		return hranaValue{Type: "float", Value: v}, nil
	case fmt.Stringer:
		return hranaValue{Type: "text", Value: v.String()}, nil
	}
	return hranaValue{}, fmt.Errorf("unsupported type %T", a)
}

func decodeValue(v hranaValue) any {
	switch v.Type {
	case "integer":
		switch n := v.Value.(type) {
		case string:
			if i, err := strconv.ParseInt(n, 10, 64); err == nil {
				return i
			}
			return n
		case float64:
			return int64(n)
		}
		return v.Value
	case "float":
		if f, ok := v.Value.(float64); ok {
			return f
		}
		return v.Value
	case "text":
		return v.Value
	case "blob":
		b, err := base64.StdEncoding.DecodeString(v.Base64)
		if err != nil {
			return nil
		}
		return b
	}
	return nil
}

func toResultSet(res *hranaStmtResult) *rowmap.ResultSet {
	rs := &rowmap.ResultSet{Columns: make([]string, len(res.Cols)), Rows: make([]any, 0, len(res.Rows))}
	for i, c := range res.Cols {
		rs.Columns[i] = c.Name
	}
	for _, row := range res.Rows {
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = decodeValue(v)
		}
		rs.Rows = append(rs.Rows, values)
	}
	return rs
}

func toResult(res *hranaStmtResult) Result {
	out := Result{RowsAffected: res.AffectedRowCount}
	if res.LastInsertRowID != nil {
		out.LastInsertID, _ = strconv.ParseInt(*res.LastInsertRowID, 10, 64)
	}
	return out
}

func remoteError(e *hranaError) error {
	if e == nil {
		return fmt.Errorf("remote sql: unknown error")
	}
	if e.Code != "" {
		return fmt.Errorf("remote sql: %s (%s)", e.Message, e.Code)
	}
	return fmt.Errorf("remote sql: %s", e.Message)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
