package cli

import (
	"fmt"

	"github.com/neilberkman/gptmcp/cmd/gptmcp/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Start the MCP server on stdio",
	Long: `Start an MCP (Model Context Protocol) server that lets MCP clients
send prompts to OpenAI GPT models and manage conversation sessions.

Configure in Claude Desktop's config file:
  {
    "mcpServers": {
      "gpt-mcp": {
        "command": "gpt-mcp",
        "args": ["serve-mcp"],
        "env": { "OPENAI_API_KEY": "sk-..." }
      }
    }
  }
`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := mcp.StartServer(cfg, logger, version); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}
