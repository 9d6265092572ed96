package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docsentry/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions interactively",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().IntP("top-k", "k", 0, "Number of chunks to retrieve (default from config)")
	chatCmd.Flags().BoolP("show-sources", "s", true, "Show the chunks each answer was built from")
}

func runChat(cmd *cobra.Command, args []string) error {
	topK, _ := cmd.Flags().GetInt("top-k")
	showSources, _ := cmd.Flags().GetBool("show-sources")

	kb, err := newKnowledgeBase()
	if err != nil {
		return err
	}
	defer kb.Close()
	if err := kb.Initialize(cmd.Context()); err != nil {
		return err
	}

	llmClient := newLLMClient()
	if err := llmClient.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("failed to connect to Ollama: %w", err)
	}

	s := kb.Stats()
	summary := fmt.Sprintf("%d chunks learned · model %s · %s", s.Vectors, llmClient.GetModel(), cfg.Ollama.URL)
	m := tui.New(cmd.Context(), kb, topK, showSources, summary)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
	return err
}
