package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"docsentry/internal/knowledge"
	"docsentry/internal/metastore"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Learn documents and ask questions about them",
}

var kbAddCmd = &cobra.Command{
	Use:   "add [file/directory]",
	Short: "Learn documents into the knowledge base",
	Long: `Learn documents by extracting their text, splitting it into overlapping word windows,
embedding each window with Ollama and storing the vectors in the knowledge index.

Supported file formats:
- .txt, .md (plain text)
- .pdf (text layer via pdftotext)
- .png, .jpg, .jpeg, .tif (OCR via tesseract)

Examples:
  docsentry kb add manual.pdf --name "Bronze manual"
  docsentry kb add ./docs
  docsentry kb add . --recursive -e .md,.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runKBAdd,
}

var kbQueryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question about the learned documents",
	Long: `Ask a question about the learned documents. This command will:
1. Embed your question
2. Find the nearest document chunks
3. Ask the Ollama text model to answer from those chunks only

Examples:
  docsentry kb query "What is the PAN number?"
  docsentry kb query "When is the next service due?" --top-k 5`,
	Args: cobra.ExactArgs(1),
	RunE: runKBQuery,
}

var kbClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every learned document",
	Long: `Empty the index and its metadata. Use --force when the files are corrupt and
cannot be loaded; they are deleted without being opened.`,
	Args: cobra.NoArgs,
	RunE: runKBClear,
}

var kbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge index statistics",
	Args:  cobra.NoArgs,
	RunE:  runKBStats,
}

func init() {
	rootCmd.AddCommand(kbCmd)
	kbCmd.AddCommand(kbAddCmd, kbQueryCmd, kbClearCmd, kbStatsCmd)

	kbAddCmd.Flags().BoolP("recursive", "r", false, "Recursively learn directories")
	kbAddCmd.Flags().StringSliceP("extensions", "e", []string{".txt", ".md", ".pdf", ".png", ".jpg", ".jpeg", ".tif", ".tiff"}, "File extensions to learn")
	kbAddCmd.Flags().String("name", "", "Display name for a single file (default is the file name)")

	kbClearCmd.Flags().BoolP("force", "f", false, "Delete the index files without loading them")

	kbQueryCmd.Flags().IntP("top-k", "k", 0, "Number of chunks to retrieve (default from config)")
	kbQueryCmd.Flags().BoolP("show-sources", "s", true, "Show the chunks the answer was built from")
	kbQueryCmd.Flags().Bool("json", false, "Print the answer and sources as JSON")
}

func runKBAdd(cmd *cobra.Command, args []string) error {
	path := args[0]
	recursive, _ := cmd.Flags().GetBool("recursive")
	extensions, _ := cmd.Flags().GetStringSlice("extensions")
	name, _ := cmd.Flags().GetString("name")

	files, err := getFilesToProcess(path, recursive, extensions)
	if err != nil {
		return fmt.Errorf("failed to get files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no files with extensions %v found at %s", extensions, path)
	}
	if len(files) > 1 {
		name = ""
	}

	kb, err := newKnowledgeBase()
	if err != nil {
		return err
	}
	defer kb.Close()
	if err := kb.Initialize(cmd.Context()); err != nil {
		return err
	}

	fmt.Printf("Found %d files to learn\n", len(files))
	extractor := newExtractor()
	learned, chunks := 0, 0
	for i, file := range files {
		fmt.Printf("Processing [%d/%d] %s\n", i+1, len(files), file)
		res := kb.AddFile(cmd.Context(), extractor, file, name)
		if !res.OK {
			fmt.Printf("  ❌ %s\n", res.Message)
			continue
		}
		if res.Failed > 0 {
			fmt.Printf("  ⚠️  %d chunks could not be embedded\n", res.Failed)
		}
		fmt.Printf("  ✅ %s\n", res.Message)
		learned++
		chunks += res.Chunks
	}

	stats := kb.Stats()
	fmt.Printf("\nLearning complete! %d/%d documents, %d new chunks, %d vectors total\n",
		learned, len(files), chunks, stats.Vectors)
	if learned == 0 {
		return fmt.Errorf("no documents were learned")
	}
	return nil
}

func runKBQuery(cmd *cobra.Command, args []string) error {
	question := args[0]
	topK, _ := cmd.Flags().GetInt("top-k")
	showSources, _ := cmd.Flags().GetBool("show-sources")
	asJSON, _ := cmd.Flags().GetBool("json")

	kb, err := newKnowledgeBase()
	if err != nil {
		return err
	}
	defer kb.Close()

	if !asJSON {
		fmt.Printf("🔍 Searching for relevant information...\n")
	}
	ans, err := kb.Query(cmd.Context(), question, topK)
	if err != nil {
		return fmt.Errorf("failed to process query: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ans)
	}

	fmt.Printf("\n📖 Answer:\n")
	fmt.Println(strings.Repeat("-", 80))
	fmt.Println(ans.Text)
	fmt.Println(strings.Repeat("-", 80))

	if showSources && len(ans.Sources) > 0 {
		printSources(ans.Sources)
	}
	return nil
}

func printSources(sources []knowledge.Source) {
	fmt.Printf("\n📚 Sources (%d found):\n", len(sources))
	for i, source := range sources {
		fmt.Printf("\n[%d] Distance: %.4f\n", i+1, source.Distance)
		fmt.Printf("File: %s\n", source.Record.Filename)
		fmt.Printf("Chunk: %d\n", source.Record.ChunkIndex)
		fmt.Printf("Content: %s\n", truncateString(source.Record.Content, 200))
	}
}

func runKBClear(cmd *cobra.Command, args []string) error {
	if force, _ := cmd.Flags().GetBool("force"); force {
		if err := metastore.Remove(cfg.KnowledgeVectorsPath(), cfg.KnowledgeMetadataPath()); err != nil {
			return fmt.Errorf("failed to remove knowledge index: %w", err)
		}
	}

	kb, err := newKnowledgeBase()
	if err != nil {
		return err
	}
	defer kb.Close()

	if err := kb.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("🧹 Knowledge base cleared")
	return nil
}

func runKBStats(cmd *cobra.Command, args []string) error {
	kb, err := newKnowledgeBase()
	if err != nil {
		return err
	}
	defer kb.Close()
	if err := kb.Initialize(cmd.Context()); err != nil {
		return err
	}

	s := kb.Stats()
	fmt.Printf("Vectors:   %d\n", s.Vectors)
	fmt.Printf("Records:   %d\n", s.Records)
	fmt.Printf("Dimension: %d\n", s.Dimension)
	fmt.Printf("Data dir:  %s\n", filepath.Dir(cfg.KnowledgeVectorsPath()))
	return nil
}

func getFilesToProcess(path string, recursive bool, extensions []string) ([]string, error) {
	var files []string

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		// a single file is taken as given
		return []string{path}, nil
	}

	if recursive {
		err = filepath.WalkDir(path, func(filePath string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && hasValidExtension(filePath, extensions) {
				files = append(files, filePath)
			}
			return nil
		})
		return files, err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			filePath := filepath.Join(path, entry.Name())
			if hasValidExtension(filePath, extensions) {
				files = append(files, filePath)
			}
		}
	}
	return files, nil
}

func hasValidExtension(filename string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, validExt := range extensions {
		validExt = strings.ToLower(validExt)
		if !strings.HasPrefix(validExt, ".") {
			validExt = "." + validExt
		}
		if ext == validExt {
			return true
		}
	}
	return false
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
