package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/neilberkman/gptmcp/internal/core/ask"
	"github.com/neilberkman/gptmcp/internal/core/config"
	"github.com/neilberkman/gptmcp/internal/core/format"
	"github.com/neilberkman/gptmcp/internal/core/llm"
	"github.com/neilberkman/gptmcp/internal/core/logging"
	"github.com/neilberkman/gptmcp/internal/core/models"
	"github.com/neilberkman/gptmcp/internal/core/session"
)

// ServerName is the name advertised to MCP clients
const ServerName = "gpt-mcp"

// AskGPTArgs defines arguments for the askGPT tool
type AskGPTArgs struct {
	Model           string `json:"model" jsonschema:"description=Model to use,required"`
	Prompt          string `json:"prompt" jsonschema:"description=The prompt to send,required"`
	ReasoningEffort string `json:"reasoning_effort,omitempty" jsonschema:"description=Reasoning effort (gpt-5 family only)"`
	Verbosity       string `json:"verbosity,omitempty" jsonschema:"description=Response verbosity (gpt-5 family only)"`
	SessionID       string `json:"session_id,omitempty" jsonschema:"description=Session to continue"`
}

// CreateSessionArgs defines arguments for the createSession tool
type CreateSessionArgs struct {
	SystemPrompt string `json:"system_prompt,omitempty" jsonschema:"description=Optional system prompt for the session"`
}

// SessionIDArgs defines arguments for clearSession and getSessionInfo
type SessionIDArgs struct {
	SessionID string `json:"session_id" jsonschema:"description=Session ID,required"`
}

// Deps are the core services the tools call into
type Deps struct {
	Asker    *ask.Service
	Store    *session.Store
	Renderer *format.AnswerRenderer
	Logger   *slog.Logger
	Now      func() time.Time
}

// StartServer wires the store, upstream provider and tools, then serves MCP
// over stdio until stdin closes.
func StartServer(cfg *config.Config, logger *slog.Logger, version string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	renderer, err := format.NewAnswerRenderer(cfg.AnswerTemplate)
	if err != nil {
		return err
	}

	store := session.NewStore(
		session.WithLimits(cfg.Limits()),
		session.WithLogger(logging.Component(logger, "session")),
	)
	provider := llm.NewOpenAIProvider(llm.OpenAIConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		MaxRetries: cfg.MaxRetries,
	})

	s := NewServer(Deps{
		Asker:    ask.NewService(store, provider, logging.Component(logger, "ask")),
		Store:    store,
		Renderer: renderer,
		Logger:   logging.Component(logger, "mcp"),
	}, version)

	logger.Info("starting MCP server",
		slog.String("name", ServerName),
		slog.String("version", version),
		slog.String("provider", provider.Name()))

	return server.ServeStdio(s,
		server.WithErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)))
}

// NewServer builds the MCP server with every tool registered
func NewServer(deps Deps, version string) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	askTool := mcp.NewTool("askGPT",
		mcp.WithTitleAnnotation("Ask GPT"),
		mcp.WithDescription("Send a prompt to OpenAI GPT models with optional conversation context"),
		mcp.WithString("model",
			mcp.Required(),
			mcp.Enum(models.Strings(models.ChatModels)...),
			mcp.Description("Model to use")),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("The prompt to send to GPT")),
		mcp.WithString("reasoning_effort",
			mcp.Enum(models.Strings(models.ReasoningEfforts)...),
			mcp.Description("Reasoning effort for gpt-5 models (ignored by o3)")),
		mcp.WithString("verbosity",
			mcp.Enum(models.Strings(models.Verbosities)...),
			mcp.Description("Response verbosity for gpt-5 models (ignored by o3)")),
		mcp.WithString("session_id",
			mcp.Description("Session ID to maintain conversation context")),
	)
	s.AddTool(askTool, makeAskGPTHandler(deps))

	createTool := mcp.NewTool("createSession",
		mcp.WithTitleAnnotation("Create Session"),
		mcp.WithDescription("Create a new conversation session for maintaining context across multiple GPT calls"),
		mcp.WithString("system_prompt",
			mcp.Description("Optional system prompt to set the context for the session")),
	)
	s.AddTool(createTool, makeCreateSessionHandler(deps))

	clearTool := mcp.NewTool("clearSession",
		mcp.WithTitleAnnotation("Clear Session"),
		mcp.WithDescription("Clear a conversation session and its history"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID to clear")),
	)
	s.AddTool(clearTool, makeClearSessionHandler(deps))

	listTool := mcp.NewTool("listSessions",
		mcp.WithTitleAnnotation("List Sessions"),
		mcp.WithDescription("List all active conversation sessions"),
	)
	s.AddTool(listTool, makeListSessionsHandler(deps))

	infoTool := mcp.NewTool("getSessionInfo",
		mcp.WithTitleAnnotation("Get Session Info"),
		mcp.WithDescription("Get detailed information about a specific session"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID to get info for")),
	)
	s.AddTool(infoTool, makeGetSessionInfoHandler(deps))

	return s
}

// decodeArgs re-marshals the raw tool arguments into a typed struct
func decodeArgs(request mcp.CallToolRequest, v any) error {
	argsBytes, err := json.Marshal(request.Params.Arguments)
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if string(argsBytes) == "null" {
		return nil
	}
	if err := json.Unmarshal(argsBytes, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// toolError is the only way a tool reports failure; the protocol call itself succeeds
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError("Error: " + err.Error())
}

func requireSessionID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("session_id is required")
	}
	return nil
}

func makeAskGPTHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args AskGPTArgs
		if err := decodeArgs(request, &args); err != nil {
			return toolError(err), nil
		}

		result, err := deps.Asker.Ask(ctx, ask.Params{
			Model:           args.Model,
			Prompt:          args.Prompt,
			ReasoningEffort: args.ReasoningEffort,
			Verbosity:       args.Verbosity,
			SessionID:       args.SessionID,
		})
		if err != nil {
			deps.Logger.Warn("askGPT failed", slog.Any("error", err))
			return toolError(err), nil
		}

		text, err := deps.Renderer.Render(result)
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

func makeCreateSessionHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args CreateSessionArgs
		if err := decodeArgs(request, &args); err != nil {
			return toolError(err), nil
		}

		id := deps.Store.Create(args.SystemPrompt)
		deps.Logger.Info("session created",
			slog.String("session_id", id),
			slog.Bool("system_prompt", args.SystemPrompt != ""))

		text, err := format.SessionCreatedJSON(id, args.SystemPrompt != "")
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

func makeClearSessionHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args SessionIDArgs
		if err := decodeArgs(request, &args); err != nil {
			return toolError(err), nil
		}
		if err := requireSessionID(args.SessionID); err != nil {
			return toolError(err), nil
		}

		if !deps.Store.Clear(args.SessionID) {
			return mcp.NewToolResultText("Session not found"), nil
		}
		deps.Logger.Info("session cleared", slog.String("session_id", args.SessionID))
		return mcp.NewToolResultText("Session cleared successfully"), nil
	}
}

func makeListSessionsHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		summaries := deps.Store.List()
		return mcp.NewToolResultText(format.SessionList(summaries, deps.Now())), nil
	}
}

func makeGetSessionInfoHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args SessionIDArgs
		if err := decodeArgs(request, &args); err != nil {
			return toolError(err), nil
		}
		if err := requireSessionID(args.SessionID); err != nil {
			return toolError(err), nil
		}

		info, ok := deps.Store.Info(args.SessionID)
		if !ok {
			return mcp.NewToolResultText("Session not found"), nil
		}
		text, err := format.SessionInfoJSON(info)
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}
