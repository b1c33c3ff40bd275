// Command reinflate decodes a JSONL/NDJSON or JSON-array file of V3 codec
// records (or tolerated legacy/fallback shapes) back into plain JSON
// entries: one JSON text per decoded record per output line (a V3 frame
// becomes one JSON array of its events), or a single JSON array with --array.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"polymarket-v3-logger/internal/reinflate"
)

var (
	inPath  string
	outPath string
	asArray bool
)

func main() {
	rootCmd.Flags().StringVarP(&inPath, "in", "i", "", "Input file (JSONL/NDJSON or JSON array)")
	rootCmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file")
	rootCmd.Flags().BoolVarP(&asArray, "array", "a", false, "Write output as a JSON array instead of NDJSON")
	rootCmd.MarkFlagRequired("in")
	rootCmd.MarkFlagRequired("out")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reinflate",
	Short: "reinflate decodes V3-compressed market-frame logs back to JSON",
	Long:  "reinflate decodes V3-compressed market-frame logs back to JSON, tolerating legacy zlib+base64 and raw-text fallback records",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := outPath
		if out == "" {
			out = "/dev/stdout"
		}
		if err := reinflate.ReinflateFile(inPath, out, asArray); err != nil {
			return fmt.Errorf("reinflate %s: %w", inPath, err)
		}
		return nil
	},
}
