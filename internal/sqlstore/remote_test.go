package sqlstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"dugtong/internal/rowmap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturedPipeline struct {
	Requests []map[string]any `json:"requests"`
}

func newHranaServer(t *testing.T, handle func(p capturedPipeline) any) (*httptest.Server, *[]capturedPipeline) {
	t.Helper()
	var seen []capturedPipeline
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/pipeline", r.URL.Path)
		assert.Equal(t, "Bearer db-token", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var p capturedPipeline
		require.NoError(t, json.Unmarshal(body, &p))
		seen = append(seen, p)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handle(p))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestRemoteExecutor_Query(t *testing.T) {
	srv, seen := newHranaServer(t, func(p capturedPipeline) any {
		return map[string]any{"results": []any{
			map[string]any{"type": "ok", "response": map[string]any{"type": "execute", "result": map[string]any{
				"cols": []any{map[string]any{"name": "id"}, map[string]any{"name": "full_name"}, map[string]any{"name": "notes"}},
				"rows": []any{
					[]any{map[string]any{"type": "integer", "value": "7"}, map[string]any{"type": "text", "value": "Ana"}, map[string]any{"type": "null"}},
				},
				"affected_row_count": 0,
			}}},
			map[string]any{"type": "ok", "response": map[string]any{"type": "close"}},
		}}
	})

	exec := NewRemoteExecutor(srv.URL, "db-token", zap.NewNop())
	rs, err := exec.Query(context.Background(), `SELECT id, full_name, notes FROM donors WHERE blood_type = ? AND is_deleted = ?`, "O+", false)
	require.NoError(t, err)

	recs := rowmap.Map(rs)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(7), recs[0]["id"])
	assert.Equal(t, "Ana", recs[0]["full_name"])
	assert.Nil(t, recs[0]["notes"])

	require.Len(t, *seen, 1)
	stmt := (*seen)[0].Requests[0]["stmt"].(map[string]any)
	args := stmt["args"].([]any)
	assert.Equal(t, map[string]any{"type": "text", "value": "O+"}, args[0])
	assert.Equal(t, map[string]any{"type": "integer", "value": "0"}, args[1])
	assert.Equal(t, "close", (*seen)[0].Requests[1]["type"])
}

func TestRemoteExecutor_StatementError(t *testing.T) {
	srv, _ := newHranaServer(t, func(p capturedPipeline) any {
		return map[string]any{"results": []any{
			map[string]any{"type": "error", "error": map[string]any{"message": "no such table: nope", "code": "SQLITE_ERROR"}},
		}}
	})

	exec := NewRemoteExecutor(srv.URL, "db-token", zap.NewNop())
	_, err := exec.Exec(context.Background(), `DELETE FROM nope`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table")
}

func TestRemoteExecutor_WithTxSendsConditionalBatch(t *testing.T) {
	srv, seen := newHranaServer(t, func(p capturedPipeline) any {
		return map[string]any{"results": []any{
			map[string]any{"type": "ok", "response": map[string]any{"type": "batch", "result": map[string]any{
				"step_results": []any{nil, nil, nil, nil, nil},
				"step_errors":  []any{nil, nil, nil, nil, nil},
			}}},
		}}
	})

	exec := NewRemoteExecutor(srv.URL, "db-token", zap.NewNop())
	err := exec.WithTx(context.Background(), func(tx Executor) error {
		if _, err := tx.Exec(context.Background(), `INSERT INTO users (id) VALUES (?)`, "u1"); err != nil {
			return err
		}
		_, err := tx.Exec(context.Background(), `INSERT INTO donor_profiles (user_id) VALUES (?)`, "u1")
		return err
	})
	require.NoError(t, err)

	require.Len(t, *seen, 1)
	batch := (*seen)[0].Requests[0]["batch"].(map[string]any)
	steps := batch["steps"].([]any)
	require.Len(t, steps, 5)
	assert.Equal(t, "BEGIN", steps[0].(map[string]any)["stmt"].(map[string]any)["sql"])
	assert.Equal(t, "COMMIT", steps[3].(map[string]any)["stmt"].(map[string]any)["sql"])
	assert.Equal(t, "ROLLBACK", steps[4].(map[string]any)["stmt"].(map[string]any)["sql"])
	assert.Equal(t, "not", steps[4].(map[string]any)["condition"].(map[string]any)["type"])
}

func TestRemoteExecutor_WithTxStepError(t *testing.T) {
	srv, _ := newHranaServer(t, func(p capturedPipeline) any {
		return map[string]any{"results": []any{
			map[string]any{"type": "ok", "response": map[string]any{"type": "batch", "result": map[string]any{
				"step_results": []any{nil, nil, nil, nil},
				"step_errors":  []any{nil, map[string]any{"message": "UNIQUE constraint failed"}, nil, nil},
			}}},
		}}
	})

	exec := NewRemoteExecutor(srv.URL, "db-token", zap.NewNop())
	err := exec.WithTx(context.Background(), func(tx Executor) error {
		_, err := tx.Exec(context.Background(), `INSERT INTO users (id) VALUES (?)`, "u1")
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNIQUE")
}

func TestRemoteExecutor_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad token"}`))
	}))
	defer srv.Close()

	exec := NewRemoteExecutor(srv.URL, "wrong", zap.NewNop())
	_, err := exec.Query(context.Background(), `SELECT 1`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
