package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"docsentry/internal/authenticity"
	"docsentry/internal/features"
	"docsentry/internal/metastore"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Train on authentic identity documents and verify new ones",
}

var authTrainCmd = &cobra.Command{
	Use:   "train [file...]",
	Short: "Add authentic exemplars to the authenticity index",
	Long: `Add one or more known-authentic documents of the given type to the authenticity index.

Examples:
  docsentry auth train "pan card.pdf" --type PAN
  docsentry auth train scans/*.png --type AADHAAR`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAuthTrain,
}

var authVerifyCmd = &cobra.Command{
	Use:   "verify [file...]",
	Short: "Score documents against the trained exemplars",
	Long: `Score each document against its nearest trained exemplars. A document is reported
authentic when 1/(1+mean distance) reaches the configured threshold.

Examples:
  docsentry auth verify upload.pdf --type PAN
  docsentry auth verify a.png b.png --type AADHAAR --json --parallel 4`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAuthVerify,
}

var authStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show authenticity index statistics",
	Args:  cobra.NoArgs,
	RunE:  runAuthStats,
}

var authClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every trained exemplar",
	Long: `Empty the index and its metadata. Use --force when the files are corrupt and
cannot be loaded; they are deleted without being opened.`,
	Args: cobra.NoArgs,
	RunE: runAuthClear,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authTrainCmd, authVerifyCmd, authStatsCmd, authClearCmd)

	for _, c := range []*cobra.Command{authTrainCmd, authVerifyCmd} {
		c.Flags().StringP("type", "t", "", "Document type: PAN or AADHAAR")
		c.MarkFlagRequired("type")
	}
	authClearCmd.Flags().BoolP("force", "f", false, "Delete the index files without loading them")
	authVerifyCmd.Flags().Bool("json", false, "Print verdicts as JSON")
	authVerifyCmd.Flags().IntP("parallel", "p", 1, "Number of documents verified concurrently")
}

func docTypeFlag(cmd *cobra.Command) (features.DocType, error) {
	raw, _ := cmd.Flags().GetString("type")
	dt, err := features.ParseDocType(raw)
	if err != nil {
		return "", err
	}
	if !dt.Known() {
		fmt.Fprintf(os.Stderr, "⚠️  %s has no type-specific features; only text statistics are compared\n", dt)
	}
	return dt, nil
}

func samplesFor(paths []string, dt features.DocType) []authenticity.Sample {
	samples := make([]authenticity.Sample, len(paths))
	for i, p := range paths {
		samples[i] = authenticity.Sample{Path: p, DocType: dt}
	}
	return samples
}

func runAuthTrain(cmd *cobra.Command, args []string) error {
	dt, err := docTypeFlag(cmd)
	if err != nil {
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

	sum := idx.TrainAll(cmd.Context(), samplesFor(args, dt))
	for _, f := range sum.Failed {
		fmt.Printf("❌ %s: %s\n", f.Path, f.Error)
	}
	fmt.Printf("✅ Trained on %d/%d %s documents (%d exemplars total)\n",
		sum.Trained, len(args), dt, idx.Stats().Vectors)
	if sum.Trained == 0 {
		return fmt.Errorf("no documents were trained")
	}
	return nil
}

func runAuthVerify(cmd *cobra.Command, args []string) error {
	dt, err := docTypeFlag(cmd)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")
	parallel, _ := cmd.Flags().GetInt("parallel")

	idx, err := newAuthenticityIndex()
	if err != nil {
		return err
	}
	defer idx.Close()

	verdicts, err := idx.VerifyAll(cmd.Context(), samplesFor(args, dt), parallel)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if len(verdicts) == 1 {
			return enc.Encode(verdicts[0])
		}
		return enc.Encode(verdicts)
	}

	for _, v := range verdicts {
		mark := "❌"
		if v.IsAuthentic {
			mark = "✅"
		}
		fmt.Printf("%s %s\n", mark, v.File)
		fmt.Printf("   %s\n", v.Reason)
		fmt.Printf("   confidence %.3f (threshold %.2f), mean distance %.4f\n", v.Confidence, v.Threshold, v.AvgDistance)
		if len(v.MatchedDocuments) > 0 {
			names := make([]string, len(v.MatchedDocuments))
			for i, m := range v.MatchedDocuments {
				names[i] = m.FilePath
			}
			fmt.Printf("   nearest exemplars: %s\n", strings.Join(names, ", "))
		}
	}
	return nil
}

func runAuthStats(cmd *cobra.Command, args []string) error {
	idx, err := newAuthenticityIndex()
	if err != nil {
		return err
	}
	defer idx.Close()
	if err := idx.Initialize(cmd.Context()); err != nil {
		return err
	}

	s := idx.Stats()
	fmt.Printf("Exemplars: %d\n", s.Vectors)
	fmt.Printf("Records:   %d\n", s.Records)
	fmt.Printf("Dimension: %d\n", s.Dimension)
	fmt.Printf("Threshold: %.2f\n", s.Threshold)
	return nil
}

func runAuthClear(cmd *cobra.Command, args []string) error {
	if force, _ := cmd.Flags().GetBool("force"); force {
		if err := metastore.Remove(cfg.AuthenticityVectorsPath(), cfg.AuthenticityMetadataPath()); err != nil {
			return fmt.Errorf("failed to remove authenticity index: %w", err)
		}
	}

	idx, err := newAuthenticityIndex()
	if err != nil {
		return err
	}
	defer idx.Close()
	if err := idx.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("🧹 Authenticity index cleared")
	return nil
}
