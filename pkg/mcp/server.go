// Package mcp exposes a graphdraw-d editing session over the Model Context
// Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/linem-davton/graphdraw/pkg/client"
	"github.com/linem-davton/graphdraw/pkg/generator"
	"github.com/linem-davton/graphdraw/pkg/model"
)

const (
	modelURI    = "graphdraw://model"
	scheduleURI = "graphdraw://schedule"
	promptName  = "graphdraw-aware"
)

// Options selects the daemon session the bridge edits.
type Options struct {
	// SessionID attaches to an existing session. Empty creates one lazily.
	SessionID string
	// Key is the storage key a lazily created session is seeded from.
	Key string
}

// Server adapts graphdraw-d to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
	key       string

	mu        sync.Mutex
	sessionID string
}

// NewServer creates a new MCP server instance.
func NewServer(apiURL string, opts Options) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"graphdraw",
			"1.0.0",
		),
		apiClient: client.NewClient(apiURL),
		key:       opts.Key,
		sessionID: opts.SessionID,
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Client returns the API client the bridge talks through.
func (s *Server) Client() *client.Client { return s.apiClient }

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// session returns the bound session id, creating a seeded session on first
// use.
func (s *Server) session(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID != "" {
		return s.sessionID, nil
	}
	st, err := s.apiClient.CreateSession(ctx, s.key, true)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	s.sessionID = st.ID
	return s.sessionID, nil
}

// --- Resources ---

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		modelURI,
		"Combined Model",
		mcp.WithResourceDescription("The application (tasks, messages) and platform (nodes, links) models being edited"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadModel)

	s.mcpServer.AddResource(mcp.NewResource(
		scheduleURI,
		"Schedule",
		mcp.WithResourceDescription("The latest schedule per algorithm, or the scheduling error"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadSchedule)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"add_task",
		mcp.WithDescription("Add a task to the application model. Omitted fields use the editor defaults (wcet 10, mcet 5, deadline 500)."),
		mcp.WithNumber("wcet", mcp.Description("Worst-case execution time")),
		mcp.WithNumber("mcet", mcp.Description("Mean-case execution time")),
		mcp.WithNumber("deadline", mcp.Description("Relative deadline")),
	), s.handleAddTask)

	s.mcpServer.AddTool(mcp.NewTool(
		"add_message",
		mcp.WithDescription("Add a message (dependency) from sender task to receiver task."),
		mcp.WithNumber("sender", mcp.Required(), mcp.Description("Sender task id")),
		mcp.WithNumber("receiver", mcp.Required(), mcp.Description("Receiver task id")),
		mcp.WithNumber("size", mcp.Description("Message size (default 20)")),
		mcp.WithNumber("message_injection_time", mcp.Description("Injection time (default 0)")),
	), s.handleAddMessage)

	s.mcpServer.AddTool(mcp.NewTool(
		"delete_task",
		mcp.WithDescription("Delete a task and every message touching it."),
		mcp.WithNumber("task_id", mcp.Required(), mcp.Description("Task id")),
	), s.handleDeleteTask)

	s.mcpServer.AddTool(mcp.NewTool(
		"add_node",
		mcp.WithDescription("Add a platform node."),
		mcp.WithString("type", mcp.Required(),
			mcp.Enum(string(model.NodeCompute), string(model.NodeRouter), string(model.NodeSensor), string(model.NodeActuator)),
			mcp.Description("Node type")),
	), s.handleAddNode)

	s.mcpServer.AddTool(mcp.NewTool(
		"add_link",
		mcp.WithDescription("Add a directed link. One endpoint must be a router; router-router links are allowed."),
		mcp.WithNumber("start_node", mcp.Required(), mcp.Description("Start node id")),
		mcp.WithNumber("end_node", mcp.Required(), mcp.Description("End node id")),
		mcp.WithNumber("link_delay", mcp.Description("Link delay (default 10)")),
		mcp.WithNumber("bandwidth", mcp.Description("Bandwidth (default 10)")),
	), s.handleAddLink)

	s.mcpServer.AddTool(mcp.NewTool(
		"delete_node",
		mcp.WithDescription("Delete a platform node and every link touching it."),
		mcp.WithNumber("node_id", mcp.Required(), mcp.Description("Node id")),
	), s.handleDeleteNode)

	s.mcpServer.AddTool(mcp.NewTool(
		"delete_link",
		mcp.WithDescription("Delete the link start_node -> end_node."),
		mcp.WithNumber("start_node", mcp.Required(), mcp.Description("Start node id")),
		mcp.WithNumber("end_node", mcp.Required(), mcp.Description("End node id")),
	), s.handleDeleteLink)

	s.mcpServer.AddTool(mcp.NewTool(
		"generate_application",
		mcp.WithDescription("Replace the application model with a random DAG."),
		mcp.WithNumber("n", mcp.Description("Number of tasks (default 5)")),
		mcp.WithNumber("link_prob", mcp.Description("Probability of a message between two tasks (default 0.5)")),
		mcp.WithNumber("max_wcet", mcp.Description("Maximum wcet (default 100)")),
		mcp.WithNumber("max_deadline", mcp.Description("Maximum deadline (default 1000)")),
	), s.handleGenerateApplication)

	s.mcpServer.AddTool(mcp.NewTool(
		"generate_platform",
		mcp.WithDescription("Replace the platform model with a random network: a router ring plus one uplink per other node."),
		mcp.WithNumber("compute", mcp.Description("Compute nodes (default 6)")),
		mcp.WithNumber("routers", mcp.Description("Routers (default 3)")),
		mcp.WithNumber("sensors", mcp.Description("Sensors (default 2)")),
		mcp.WithNumber("actuators", mcp.Description("Actuators (default 2)")),
	), s.handleGeneratePlatform)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		promptName,
		mcp.WithPromptDescription("Explains the graphdraw application and platform models and their rules"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func textResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleReadModel(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.apiClient.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch model: %w", err)
	}
	return textResource(request.Params.URI, st.Model)
}

type scheduleView struct {
	Schedule model.ScheduleResult `json:"schedule"`
	Error    string               `json:"error,omitempty"`
	Pending  bool                 `json:"pending"`
	Missed   []string             `json:"missed_deadlines,omitempty"`
}

func (s *Server) handleReadSchedule(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.apiClient.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schedule: %w", err)
	}
	view := scheduleView{Schedule: st.Schedule, Error: st.ScheduleError, Pending: st.SchedulePending}
	for name, sched := range st.Schedule {
		if len(sched.MissedDeadlines) > 0 {
			view.Missed = append(view.Missed, fmt.Sprintf("%s: %v", name, sched.MissedDeadlines))
		}
	}
	sort.Strings(view.Missed)
	return textResource(request.Params.URI, view)
}

// optionalFloat returns the argument key when the caller supplied it.
func optionalFloat(request mcp.CallToolRequest, key string) *float64 {
	if _, ok := request.GetArguments()[key]; !ok {
		return nil
	}
	v := mcp.ParseFloat64(request, key, 0)
	return &v
}

func intArg(request mcp.CallToolRequest, key string) int {
	return int(mcp.ParseFloat64(request, key, 0))
}

// toolError turns an API failure into a tool result the agent can read.
func toolError(action string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", action, err))
}

func (s *Server) handleAddTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.session(ctx)
	if err != nil {
		return toolError("add_task", err), nil
	}
	task, err := s.apiClient.AddTask(ctx, id, client.TaskSpec{
		WCET:     optionalFloat(request, "wcet"),
		MCET:     optionalFloat(request, "mcet"),
		Deadline: optionalFloat(request, "deadline"),
	})
	if err != nil {
		return toolError("add_task", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Added task %d", task)), nil
}

func (s *Server) handleAddMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.session(ctx)
	if err != nil {
		return toolError("add_message", err), nil
	}
	spec := client.MessageSpec{
		Sender:               model.TaskID(intArg(request, "sender")),
		Receiver:             model.TaskID(intArg(request, "receiver")),
		Size:                 optionalFloat(request, "size"),
		MessageInjectionTime: optionalFloat(request, "message_injection_time"),
	}
	msg, err := s.apiClient.AddMessage(ctx, id, spec)
	if err != nil {
		return toolError("add_message", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Added message %d: %d -> %d", msg, spec.Sender, spec.Receiver)), nil
}

func (s *Server) handleDeleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.session(ctx)
	if err != nil {
		return toolError("delete_task", err), nil
	}
	task := model.TaskID(intArg(request, "task_id"))
	if err := s.apiClient.DeleteTask(ctx, id, task); err != nil {
		return toolError("delete_task", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted task %d", task)), nil
}

func (s *Server) handleAddNode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.session(ctx)
	if err != nil {
		return toolError("add_node", err), nil
	}
	t, err := model.ParseNodeType(mcp.ParseString(request, "type", ""))
	if err != nil {
		return toolError("add_node", err), nil
	}
	node, err := s.apiClient.AddNode(ctx, id, t)
	if err != nil {
		return toolError("add_node", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Added %s node %d", t, node)), nil
}

func (s *Server) handleAddLink(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.session(ctx)
	if err != nil {
		return toolError("add_link", err), nil
	}
	spec := client.LinkSpec{
		StartNode: model.NodeID(intArg(request, "start_node")),
		EndNode:   model.NodeID(intArg(request, "end_node")),
		LinkDelay: optionalFloat(request, "link_delay"),
		Bandwidth: optionalFloat(request, "bandwidth"),
	}
	link, err := s.apiClient.AddLink(ctx, id, spec)
	if err != nil {
		return toolError("add_link", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Added link %d: %d -> %d", link, spec.StartNode, spec.EndNode)), nil
}

func (s *Server) handleDeleteNode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.session(ctx)
	if err != nil {
		return toolError("delete_node", err), nil
	}
	node := model.NodeID(intArg(request, "node_id"))
	if err := s.apiClient.DeleteNode(ctx, id, node); err != nil {
		return toolError("delete_node", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted node %d", node)), nil
}

func (s *Server) handleDeleteLink(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.session(ctx)
	if err != nil {
		return toolError("delete_link", err), nil
	}
	start := model.NodeID(intArg(request, "start_node"))
	end := model.NodeID(intArg(request, "end_node"))
	if err := s.apiClient.DeleteLink(ctx, id, start, end); err != nil {
		return toolError("delete_link", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted link %d -> %d", start, end)), nil
}

func (s *Server) handleGenerateApplication(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.session(ctx)
	if err != nil {
		return toolError("generate_application", err), nil
	}
	p := generator.DefaultApplicationParams()
	p.N = int(mcp.ParseFloat64(request, "n", float64(p.N)))
	p.LinkProb = mcp.ParseFloat64(request, "link_prob", p.LinkProb)
	p.MaxWCET = int(mcp.ParseFloat64(request, "max_wcet", float64(p.MaxWCET)))
	p.MaxDeadline = int(mcp.ParseFloat64(request, "max_deadline", float64(p.MaxDeadline)))

	st, err := s.apiClient.GenerateApplication(ctx, id, p)
	if err != nil {
		return toolError("generate_application", err), nil
	}
	app := st.Model.Application
	return mcp.NewToolResultText(fmt.Sprintf("Generated %d tasks and %d messages", len(app.Tasks), len(app.Messages))), nil
}

func (s *Server) handleGeneratePlatform(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.session(ctx)
	if err != nil {
		return toolError("generate_platform", err), nil
	}
	p := generator.DefaultPlatformParams()
	p.Compute = int(mcp.ParseFloat64(request, "compute", float64(p.Compute)))
	p.Routers = int(mcp.ParseFloat64(request, "routers", float64(p.Routers)))
	p.Sensors = int(mcp.ParseFloat64(request, "sensors", float64(p.Sensors)))
	p.Actuators = int(mcp.ParseFloat64(request, "actuators", float64(p.Actuators)))

	st, err := s.apiClient.GeneratePlatform(ctx, id, p)
	if err != nil {
		return toolError("generate_platform", err), nil
	}
	plat := st.Model.Platform
	return mcp.NewToolResultText(fmt.Sprintf("Generated %d nodes and %d links", len(plat.Nodes), len(plat.Links))), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != promptName {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are editing a graphdraw model, the input of an external real-time scheduler.

Application model:
- Task: id, wcet (worst-case execution time), mcet (mean-case), deadline.
- Message: a dependency sender -> receiver with a size. Tasks and messages form a DAG.
  No self messages and no duplicate sender/receiver pairs.

Platform model:
- Node: compute, router, sensor or actuator.
- Link: directed start_node -> end_node with link_delay and bandwidth.
  At least one endpoint must be a router. No self links, no duplicate ordered pairs.

Deleting a task removes its messages; deleting a node removes its links.
Every change reschedules once both models are non-empty; read graphdraw://schedule for the result.
`

	return mcp.NewGetPromptResult(
		promptName,
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
