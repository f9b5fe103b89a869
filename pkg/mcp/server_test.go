package mcp

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/linem-davton/graphdraw/pkg/api"
	"github.com/linem-davton/graphdraw/pkg/logging"
	"github.com/linem-davton/graphdraw/pkg/model"
)

func newDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	reg := api.NewRegistry(api.RegistryConfig{Logger: logging.Discard()})
	srv := api.NewServer(api.Config{Registry: reg, Logger: logging.Discard()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		reg.Close()
	})
	return ts
}

func callTool(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("Expected content in result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("Expected TextContent, got %T", result.Content[0])
	}
	return text.Text
}

func readModel(t *testing.T, s *Server) model.CombinedModel {
	t.Helper()
	result, err := s.handleReadModel(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: modelURI},
	})
	if err != nil {
		t.Fatalf("handleReadModel failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("Expected 1 resource content, got %d", len(result))
	}
	content, ok := result[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("Expected TextResourceContents")
	}
	if content.MIMEType != "application/json" {
		t.Errorf("Expected application/json, got %s", content.MIMEType)
	}
	var m model.CombinedModel
	if err := json.Unmarshal([]byte(content.Text), &m); err != nil {
		t.Fatalf("Failed to parse model JSON: %v", err)
	}
	return m
}

func TestMCPServer_LazySession(t *testing.T) {
	ts := newDaemon(t)
	s := NewServer(ts.URL, Options{})

	first, err := s.session(context.Background())
	if err != nil {
		t.Fatalf("session() failed: %v", err)
	}
	second, _ := s.session(context.Background())
	if first == "" || first != second {
		t.Errorf("expected one stable session, got %q and %q", first, second)
	}
}

func TestMCPServer_EditApplication(t *testing.T) {
	ts := newDaemon(t)
	s := NewServer(ts.URL, Options{})
	ctx := context.Background()

	res, err := s.handleAddTask(ctx, callTool("add_task", map[string]interface{}{"wcet": 42.0}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("add_task: %s", resultText(t, res))
	}
	if !strings.HasPrefix(resultText(t, res), "Added task ") {
		t.Errorf("unexpected text %q", resultText(t, res))
	}
	if _, err := s.handleAddTask(ctx, callTool("add_task", map[string]interface{}{})); err != nil {
		t.Fatal(err)
	}

	m := readModel(t, s)
	if len(m.Application.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(m.Application.Tasks))
	}
	a, b := m.Application.Tasks[0], m.Application.Tasks[1]
	if a.WCET != 42 {
		t.Errorf("wcet = %v, want 42", a.WCET)
	}
	if b.WCET != 10 || b.Deadline != 500 {
		t.Errorf("defaults not applied: %+v", b)
	}

	res, _ = s.handleAddMessage(ctx, callTool("add_message", map[string]interface{}{
		"sender": float64(a.ID), "receiver": float64(b.ID),
	}))
	if res.IsError {
		t.Fatalf("add_message: %s", resultText(t, res))
	}

	res, _ = s.handleAddMessage(ctx, callTool("add_message", map[string]interface{}{
		"sender": float64(a.ID), "receiver": float64(b.ID),
	}))
	if !res.IsError {
		t.Error("expected duplicate message to be rejected")
	}
	res, _ = s.handleAddMessage(ctx, callTool("add_message", map[string]interface{}{
		"sender": float64(a.ID), "receiver": float64(a.ID),
	}))
	if !res.IsError {
		t.Error("expected self message to be rejected")
	}

	res, _ = s.handleDeleteTask(ctx, callTool("delete_task", map[string]interface{}{"task_id": float64(a.ID)}))
	if res.IsError {
		t.Fatalf("delete_task: %s", resultText(t, res))
	}
	if m := readModel(t, s); len(m.Application.Messages) != 0 {
		t.Errorf("expected messages removed with their task, got %+v", m.Application.Messages)
	}
}

func TestMCPServer_EditPlatform(t *testing.T) {
	ts := newDaemon(t)
	s := NewServer(ts.URL, Options{})
	ctx := context.Background()

	res, _ := s.handleAddNode(ctx, callTool("add_node", map[string]interface{}{"type": "bogus"}))
	if !res.IsError {
		t.Error("expected unknown node type to be rejected")
	}

	res, _ = s.handleGeneratePlatform(ctx, callTool("generate_platform", map[string]interface{}{
		"compute": 2.0, "routers": 1.0, "sensors": 1.0, "actuators": 1.0,
	}))
	if res.IsError {
		t.Fatalf("generate_platform: %s", resultText(t, res))
	}
	m := readModel(t, s)
	if len(m.Platform.Nodes) != 5 {
		t.Fatalf("expected 5 nodes, got %d", len(m.Platform.Nodes))
	}

	var router, compute model.NodeID = -1, -1
	for _, n := range m.Platform.Nodes {
		if n.Type == model.NodeRouter {
			router = n.ID
		} else if compute < 0 {
			compute = n.ID
		}
	}

	res, _ = s.handleAddNode(ctx, callTool("add_node", map[string]interface{}{"type": "sensor"}))
	if res.IsError {
		t.Fatalf("add_node: %s", resultText(t, res))
	}
	res, _ = s.handleAddLink(ctx, callTool("add_link", map[string]interface{}{
		"start_node": float64(compute), "end_node": float64(compute),
	}))
	if !res.IsError {
		t.Error("expected self link to be rejected")
	}

	res, _ = s.handleDeleteLink(ctx, callTool("delete_link", map[string]interface{}{
		"start_node": float64(compute), "end_node": float64(router),
	}))
	if res.IsError {
		t.Fatalf("delete_link: %s", resultText(t, res))
	}
	res, _ = s.handleDeleteNode(ctx, callTool("delete_node", map[string]interface{}{"node_id": float64(compute)}))
	if res.IsError {
		t.Fatalf("delete_node: %s", resultText(t, res))
	}
	res, _ = s.handleDeleteNode(ctx, callTool("delete_node", map[string]interface{}{"node_id": float64(compute)}))
	if !res.IsError {
		t.Error("expected second delete to fail")
	}
}

func TestMCPServer_GenerateApplication(t *testing.T) {
	ts := newDaemon(t)
	s := NewServer(ts.URL, Options{})

	res, err := s.handleGenerateApplication(context.Background(), callTool("generate_application", map[string]interface{}{"n": 7.0}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("generate_application: %s", resultText(t, res))
	}
	if !strings.HasPrefix(resultText(t, res), "Generated 7 tasks") {
		t.Errorf("unexpected text %q", resultText(t, res))
	}
	if got := len(readModel(t, s).Application.Tasks); got != 7 {
		t.Errorf("expected 7 tasks, got %d", got)
	}
}

func TestMCPServer_ReadSchedule(t *testing.T) {
	ts := newDaemon(t)
	s := NewServer(ts.URL, Options{})

	result, err := s.handleReadSchedule(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: scheduleURI},
	})
	if err != nil {
		t.Fatalf("handleReadSchedule failed: %v", err)
	}
	content := result[0].(mcp.TextResourceContents)
	var view map[string]interface{}
	if err := json.Unmarshal([]byte(content.Text), &view); err != nil {
		t.Fatalf("Failed to parse schedule JSON: %v", err)
	}
	if _, ok := view["pending"]; !ok {
		t.Errorf("schedule view missing pending flag: %s", content.Text)
	}
}

func TestMCPServer_UnreachableDaemon(t *testing.T) {
	ts := newDaemon(t)
	url := ts.URL
	ts.Close()

	s := NewServer(url, Options{})
	res, err := s.handleAddTask(context.Background(), callTool("add_task", nil))
	if err != nil {
		t.Fatalf("tool handlers report failures in the result, got %v", err)
	}
	if !res.IsError {
		t.Error("expected error result")
	}
}

func TestMCPServer_GetPrompt(t *testing.T) {
	s := NewServer("http://127.0.0.1:1", Options{SessionID: "unused"})

	result, err := s.handleGetPrompt(context.Background(), mcp.GetPromptRequest{
		Params: mcp.GetPromptParams{Name: promptName},
	})
	if err != nil {
		t.Fatalf("handleGetPrompt failed: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(result.Messages))
	}
	text, ok := result.Messages[0].Content.(mcp.TextContent)
	if !ok || !strings.Contains(text.Text, "router") {
		t.Errorf("unexpected prompt content %+v", result.Messages[0].Content)
	}

	if _, err := s.handleGetPrompt(context.Background(), mcp.GetPromptRequest{
		Params: mcp.GetPromptParams{Name: "other"},
	}); err == nil {
		t.Error("expected unknown prompt error")
	}
}
