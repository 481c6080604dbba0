package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/fieldguard/internal/boundary"
)

var boundariesFormat string

func init() {
	rootCmd.AddCommand(boundariesCmd)
	boundariesCmd.Flags().StringVarP(&boundariesFormat, "format", "f", "text", "Output format (text|json)")
}

var boundariesCmd = &cobra.Command{
	Use:   "boundaries",
	Short: "Fetch and print the boundary catalog from the Authority",
	RunE:  runBoundaries,
}

func runBoundaries(cmd *cobra.Command, args []string) error {
	cat, err := fetchCatalog()
	if err != nil {
		return err
	}

	switch boundariesFormat {
	case "json":
		out, err := json.MarshalIndent(map[string]any{
			"boundaries": cat.Boundaries(),
			"digest":     cat.Summary().Digest,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	case "text":
		printBoundaries(cat.Boundaries())
		fmt.Printf("\n%d boundaries, digest %s\n", cat.Len(), cat.Summary().Digest)
	default:
		return fmt.Errorf("unknown format %q (use text or json)", boundariesFormat)
	}
	return nil
}

// fetchCatalog syncs a fresh catalog from the configured Authority.
func fetchCatalog() (*boundary.Catalog, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := newAuthority(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	cat := boundary.NewCatalog(logger)
	if err := cat.Sync(ctx, client); err != nil {
		return nil, err
	}
	return cat, nil
}

func printBoundaries(bs []boundary.Boundary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPARAMETER\tMIN\tMAX\tHARD LIMIT\tTOLERANCE\tUNIT")
	for _, b := range bs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%g\t%s\n",
			b.Name, b.Key(), limit(b.MinValue), limit(b.MaxValue), limit(b.HardLimit), b.Tolerance, b.Unit)
	}
	w.Flush()
}

func limit(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}
