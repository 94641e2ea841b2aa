package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/microred/pkg/engine"
	"github.com/dukex/microred/pkg/eventloop"
	"github.com/dukex/microred/pkg/flowfile"
	"github.com/dukex/microred/pkg/metrics"
	"github.com/dukex/microred/pkg/registry"
	"github.com/dukex/microred/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFlows = `[
  {"id": "f1", "type": "tab", "label": "Main"},
  {"id": "inj", "type": "inject", "z": "f1", "payload": "hello", "payloadType": "str", "wires": [["dbg"]]},
  {"id": "dbg", "type": "debug", "z": "f1"},
  {"id": "bad", "type": "inject", "z": "f1", "payload": "x", "payloadType": "str", "wires": [["fn"]]},
  {"id": "fn", "type": "function", "z": "f1", "func": "42"},
  {"id": "note", "type": "comment", "z": "f1"}
]`

type testApp struct {
	app   *fiber.App
	graph *engine.Graph
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	items, err := flowfile.Parse([]byte(testFlows), flowfile.FormatJSON)
	require.NoError(t, err)

	reg := registry.NewRegistry(nil)
	reg.RegisterDefaultNodes()

	promRegistry := prometheus.NewRegistry()
	m, err := metrics.New(promRegistry)
	require.NoError(t, err)

	loop := eventloop.New()

	graph, err := engine.Build(context.Background(), items, engine.Options{
		Registry: reg,
		Loop:     loop,
		Metrics:  m,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	t.Cleanup(func() {
		_ = loop.Call(context.Background(), func() { _ = graph.Stop(context.Background()) })
		cancel()
		<-done
	})

	handlers := web.NewAPIHandlers(graph, reg)

	return &testApp{app: web.NewApp(handlers, promRegistry, nil), graph: graph}
}

func (a *testApp) do(t *testing.T, method, target string, body []byte) (int, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	a := setupTestApp(t)

	status, body := a.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)

	var health map[string]any
	require.NoError(t, json.Unmarshal(body, &health))

	assert.Equal(t, "healthy", health["status"])
	assert.InDelta(t, 5, health["nodes"], 0)
	assert.InDelta(t, 5, health["nodes_running"], 0)
}

func TestAPIHandlers_GetFlows(t *testing.T) {
	a := setupTestApp(t)

	status, body := a.do(t, http.MethodGet, "/flows", nil)
	require.Equal(t, http.StatusOK, status)

	var list struct {
		Flows      []web.FlowSummary `json:"flows"`
		TotalCount int               `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &list))

	assert.Equal(t, 2, list.TotalCount)
	assert.Equal(t, []web.FlowSummary{
		{ID: "config", Name: "", Nodes: 0},
		{ID: "f1", Name: "Main", Nodes: 5},
	}, list.Flows)
}

func TestAPIHandlers_GetFlow(t *testing.T) {
	tests := []struct {
		name           string
		id             string
		expectedStatus int
		validate       func(t *testing.T, body []byte)
	}{
		{
			name:           "existing flow",
			id:             "f1",
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, body []byte) {
				t.Helper()

				var f web.FlowResponse
				require.NoError(t, json.Unmarshal(body, &f))

				assert.Equal(t, "Main", f.Name)
				require.Len(t, f.Nodes, 5)
				assert.Equal(t, web.NodeResponse{ID: "inj", Type: "inject", State: "running", Outputs: 1}, f.Nodes[0])
				assert.Equal(t, "comment", f.Nodes[4].Type)
			},
		},
		{
			name:           "unknown flow",
			id:             "f9",
			expectedStatus: http.StatusNotFound,
			validate: func(t *testing.T, body []byte) {
				t.Helper()
				assert.Contains(t, string(body), "not_found")
			},
		},
	}

	a := setupTestApp(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := a.do(t, http.MethodGet, "/flows/"+tt.id, nil)
			assert.Equal(t, tt.expectedStatus, status)
			tt.validate(t, body)
		})
	}
}

func TestAPIHandlers_InjectThenDebug(t *testing.T) {
	a := setupTestApp(t)

	status, _ := a.do(t, http.MethodPost, "/inject/inj", nil)
	require.Equal(t, http.StatusAccepted, status)

	status, _ = a.do(t, http.MethodPost, "/inject/inj", []byte(`{"payload": {"n": 1}}`))
	require.Equal(t, http.StatusAccepted, status)

	status, body := a.do(t, http.MethodGet, "/debug/dbg", nil)
	require.Equal(t, http.StatusOK, status)

	var debug web.DebugResponse
	require.NoError(t, json.Unmarshal(body, &debug))

	// the first entry comes from the inject firing on start
	assert.Equal(t, []string{`"hello"`, `"hello"`, `{"n":1}`}, debug.Messages)
}

func TestAPIHandlers_InjectErrors(t *testing.T) {
	tests := []struct {
		name           string
		target         string
		body           []byte
		expectedStatus int
		expectedType   string
	}{
		{"unknown node", "/inject/nope", nil, http.StatusNotFound, "not_found"},
		{"not an inject node", "/inject/note", nil, http.StatusBadRequest, "validation_error"},
		{"invalid body", "/inject/inj", []byte(`{`), http.StatusBadRequest, "validation_error"},
		{"downstream failure", "/inject/bad", nil, http.StatusUnprocessableEntity, "delivery_error"},
	}

	a := setupTestApp(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := a.do(t, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.expectedStatus, status)
			assert.Contains(t, string(body), tt.expectedType)
		})
	}
}

func TestAPIHandlers_InjectStoppedNode(t *testing.T) {
	a := setupTestApp(t)

	require.NoError(t, a.graph.Loop().Call(context.Background(), func() {
		_ = a.graph.Stop(context.Background())
	}))

	status, body := a.do(t, http.MethodPost, "/inject/inj", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(body), "not running")
}

func TestAPIHandlers_GetDebugErrors(t *testing.T) {
	a := setupTestApp(t)

	status, _ := a.do(t, http.MethodGet, "/debug/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = a.do(t, http.MethodGet, "/debug/inj", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_GetNodeTypes(t *testing.T) {
	a := setupTestApp(t)

	status, body := a.do(t, http.MethodGet, "/nodes", nil)
	require.Equal(t, http.StatusOK, status)

	var list struct {
		NodeTypes []web.NodeTypeResponse `json:"node_types"`
	}
	require.NoError(t, json.Unmarshal(body, &list))

	ids := make([]string, 0, len(list.NodeTypes))
	for _, nt := range list.NodeTypes {
		ids = append(ids, nt.ID)
	}

	assert.Contains(t, ids, "inject")
	assert.Contains(t, ids, "mqtt-broker")
}

func TestAPIHandlers_Metrics(t *testing.T) {
	a := setupTestApp(t)

	status, _ := a.do(t, http.MethodPost, "/inject/inj", nil)
	require.Equal(t, http.StatusAccepted, status)

	status, body := a.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `microred_messages_delivered_total{node_type="debug"}`)
}
