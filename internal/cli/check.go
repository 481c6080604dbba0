package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/fieldguard/internal/boundary"
	"github.com/ppiankov/fieldguard/internal/clock"
	"github.com/ppiankov/fieldguard/internal/enforce"
	"github.com/ppiankov/fieldguard/internal/model"
	"github.com/ppiankov/fieldguard/internal/telemetry"
)

var (
	checkParams []string
	checkFormat string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringArrayVarP(&checkParams, "param", "p", nil, "Parameter to check as name=value (repeatable)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Dry-run parameters against the Authority's boundaries",
	Long: "Fetches the current boundary catalog and evaluates the given parameters\n" +
		"without recording a decision.\n\n" +
		"Exit code 0 if every parameter is within bounds, 2 if any would be blocked.",
	RunE: runCheck,
}

// checkResult is the JSON output of fieldguard check.
type checkResult struct {
	Allowed    bool              `json:"allowed"`
	Checks     []model.Check     `json:"checks"`
	Violations []model.Violation `json:"violations"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	params, err := parseParams(checkParams)
	if err != nil {
		return err
	}
	cat, err := fetchCatalog()
	if err != nil {
		return err
	}

	res := dryRun(cat, params)
	if err := writeCheckResult(os.Stdout, checkFormat, res); err != nil {
		return err
	}
	if !res.Allowed {
		os.Exit(2)
	}
	return nil
}

// dryRun evaluates params against cat without recording anything.
func dryRun(cat *boundary.Catalog, params map[string]float64) checkResult {
	engine := enforce.New(cat, telemetry.NewLog(), clock.Real(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	checks, violations := engine.Check(params)
	return checkResult{
		Allowed:    len(violations) == 0,
		Checks:     checks,
		Violations: violations,
	}
}

func writeCheckResult(w io.Writer, format string, res checkResult) error {
	switch format {
	case "json":
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(out))
	case "text":
		for _, c := range res.Checks {
			mark := "PASS"
			if !c.Passed {
				mark = "BLOCK"
			}
			fmt.Fprintf(w, "%-5s  %s=%g  %s\n", mark, c.Parameter, c.Value, c.Message)
		}
		if res.Allowed {
			fmt.Fprintf(w, "\nallowed (%d checked)\n", len(res.Checks))
		} else {
			fmt.Fprintf(w, "\nblocked: %s\n", res.Violations[0].Message)
		}
	default:
		return fmt.Errorf("unknown format %q (use text or json)", format)
	}
	return nil
}

func parseParams(raw []string) (map[string]float64, error) {
	params := make(map[string]float64, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param %q: want name=value", kv)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --param %q: %w", kv, err)
		}
		params[name] = v
	}
	return params, nil
}
