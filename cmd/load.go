package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"docsentry/internal/loader"
)

var loadCmd = &cobra.Command{
	Use:   "load [manifest.yaml]",
	Short: "Learn documents and train exemplars listed in a manifest",
	Long: `Process a YAML manifest in one run. Entries under "documents" are learned into the
knowledge base; entries under "authentic" are trained into the authenticity index.
A failing entry is reported and the rest of the manifest still runs.

Example manifest:
  documents:
    - path: manuals/bronze.pdf
      name: Bronze manual
  authentic:
    - path: samples/pan card.pdf
      type: PAN`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	m, err := loader.Load(args[0])
	if err != nil {
		return err
	}

	kb, err := newKnowledgeBase()
	if err != nil {
		return err
	}
	defer kb.Close()
	if err := kb.Initialize(cmd.Context()); err != nil {
		return err
	}

	idx, err := newAuthenticityIndex()
	if err != nil {
		return err
	}
	defer idx.Close()
	if err := idx.Initialize(cmd.Context()); err != nil {
		return err
	}

	sum := loader.Run(cmd.Context(), m, kb, idx, newExtractor())

	for _, name := range sum.Learned {
		fmt.Printf("✅ learned %s\n", name)
	}
	for _, path := range sum.Trained {
		fmt.Printf("✅ trained %s\n", path)
	}
	for _, f := range sum.Failed {
		fmt.Printf("❌ %s: %s\n", f.Path, f.Error)
	}
	fmt.Printf("\n%d documents (%d chunks) learned, %d exemplars trained, %d failures\n",
		len(sum.Learned), sum.Chunks, len(sum.Trained), len(sum.Failed))

	total := len(m.Documents) + len(m.Authentic)
	if total > 0 && len(sum.Failed) == total {
		return fmt.Errorf("every manifest entry failed")
	}
	return nil
}
