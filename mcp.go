package askdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterMCPTools registers the ask, classify, and schema tools plus the
// schema:// and greeting://{name} resources on the given MCP server.
func RegisterMCPTools(mcpServer *server.MCPServer, assistant *Assistant) {
	// ask tool
	askTool := mcp.NewTool("ask",
		mcp.WithDescription("Execute a SQL query against the PostgreSQL database. Only read-only queries (SELECT, WITH...SELECT, EXPLAIN, DESCRIBE, SHOW) are allowed. Returns results as JSON."),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("The SQL query to execute"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(askTool, assistant.loggedToolHandler("ask", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := req.RequireString("sql")
		if err != nil {
			return mcp.NewToolResultError("sql parameter is required"), nil
		}
		output := assistant.Ask(ctx, QueryInput{SQL: sql})
		jsonBytes, err := json.Marshal(output)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal query result"), nil
		}
		if output.Error != "" {
			return mcp.NewToolResultError(string(jsonBytes)), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}))

	// classify tool
	classifyTool := mcp.NewTool("classify",
		mcp.WithDescription("Check whether a SQL query would be admitted by the read-only policy, without executing it."),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("The SQL query to classify"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(classifyTool, assistant.loggedToolHandler("classify", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := req.RequireString("sql")
		if err != nil {
			return mcp.NewToolResultError("sql parameter is required"), nil
		}
		jsonBytes, err := json.Marshal(assistant.Classify(sql))
		if err != nil {
			return mcp.NewToolResultError("failed to marshal classify result"), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}))

	// schema tool
	schemaTool := mcp.NewTool("schema",
		mcp.WithDescription("List all tables visible to the current user together with their columns."),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(schemaTool, assistant.loggedToolHandler("schema", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output, err := assistant.Schema(ctx, SchemaInput{})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		jsonBytes, err := json.Marshal(output)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal schema result"), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}))

	// schema:// resource — same payload as the schema tool, for agents that
	// prefer resources over tool calls.
	schemaResource := mcp.NewResource("schema://", "Database schema",
		mcp.WithResourceDescription("Tables and columns visible to the current user"),
		mcp.WithMIMEType("application/json"),
	)
	mcpServer.AddResource(schemaResource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		output, err := assistant.Schema(ctx, SchemaInput{})
		if err != nil {
			return nil, err
		}
		jsonBytes, err := json.Marshal(output)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema resource: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})

	// greeting://{name} resource
	greetingResource := mcp.NewResourceTemplate("greeting://{name}", "Personalized greeting",
		mcp.WithTemplateDescription("Get a personalized greeting"),
		mcp.WithTemplateMIMEType("text/plain"),
	)
	mcpServer.AddResourceTemplate(greetingResource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		name := strings.TrimPrefix(req.Params.URI, "greeting://")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "text/plain",
				Text:     fmt.Sprintf("Hello, %s!", name),
			},
		}, nil
	})
}

// loggedToolHandler wraps a tool handler to log request and response lengths.
func (a *Assistant) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		respLen := resultLength(result)
		a.logger.Info().
			Str("tool", tool).
			Int("request_bytes", reqLen).
			Int("response_bytes", respLen).
			Msg("tool call")
		return result, err
	}
}

// requestLength returns the JSON-encoded byte length of the request arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
