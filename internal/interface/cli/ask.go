package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/neilberkman/gptmcp/internal/core/ask"
	"github.com/neilberkman/gptmcp/internal/core/format"
	"github.com/neilberkman/gptmcp/internal/core/llm"
	"github.com/neilberkman/gptmcp/internal/core/logging"
	"github.com/neilberkman/gptmcp/internal/core/models"
	"github.com/neilberkman/gptmcp/internal/core/session"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Ask a one-off question",
	Long: `Send a single prompt to a GPT model and print the formatted answer.

Examples:
  gpt-mcp ask "what is a monad?"
  gpt-mcp ask --model o3 "prove there are infinitely many primes"
  gpt-mcp ask --model gpt-5-mini --reasoning-effort minimal --verbosity low "2+2"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var (
	askModel     string
	askReasoning string
	askVerbosity string
)

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringVarP(&askModel, "model", "m", string(models.ModelGPT5),
		"Model to use ("+strings.Join(models.Strings(models.ChatModels), ", ")+")")
	askCmd.Flags().StringVar(&askReasoning, "reasoning-effort", "",
		"Reasoning effort ("+strings.Join(models.Strings(models.ReasoningEfforts), ", ")+")")
	askCmd.Flags().StringVar(&askVerbosity, "verbosity", "",
		"Response verbosity ("+strings.Join(models.Strings(models.Verbosities), ", ")+")")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	renderer, err := format.NewAnswerRenderer(cfg.AnswerTemplate)
	if err != nil {
		return err
	}

	provider := llm.NewOpenAIProvider(llm.OpenAIConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		MaxRetries: cfg.MaxRetries,
	})
	svc := ask.NewService(session.NewStore(), provider, logging.Component(logger, "ask"))

	spinner := NewSpinner(os.Stderr, fmt.Sprintf("Asking %s...", askModel))
	spinner.Start()
	result, err := svc.Ask(cmd.Context(), ask.Params{
		Model:           askModel,
		Prompt:          strings.Join(args, " "),
		ReasoningEffort: askReasoning,
		Verbosity:       askVerbosity,
	})
	spinner.Stop()
	if err != nil {
		return err
	}

	text, err := renderer.Render(result)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}
