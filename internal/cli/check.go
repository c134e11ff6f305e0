package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/gridedit/internal/identity"
	"github.com/roach88/gridedit/internal/record"
	"github.com/roach88/gridedit/internal/schema"
	"github.com/roach88/gridedit/internal/validate"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Schema string            // path to the CUE schema file
	Path   string            // definition path inside the schema
	Rules  map[string]string // field → cell rule
}

// RecordResult is the validation outcome of one record.
type RecordResult struct {
	Index  int                `json:"index"`
	Key    string             `json:"key,omitempty"`
	Valid  bool               `json:"valid"`
	Errors record.FieldErrors `json:"errors,omitempty"`
}

// CheckResult holds the outcome for every record in the file.
type CheckResult struct {
	Records []RecordResult `json:"records"`
	Valid   int            `json:"valid"`
	Invalid int            `json:"invalid"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check --schema <file.cue> <records.json>",
		Short: "Validate records against a CUE schema",
		Long: `Validate a JSON array of records with the schema and cell layers
used by the engine before a save.

Exit codes:
  0 - All records are valid
  1 - One or more records are invalid
  2 - Command error (unreadable schema or records)

Examples:
  gridedit check --schema product.cue products.json
  gridedit check --schema product.cue --path '#Product' products.json
  gridedit check --schema product.cue --rule price=min:0 --rule sku=required products.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "path to CUE schema file (required)")
	_ = cmd.MarkFlagRequired("schema")
	cmd.Flags().StringVar(&opts.Path, "path", schema.DefaultPath, "definition to validate against")
	cmd.Flags().StringToStringVar(&opts.Rules, "rule", nil, "cell rule as field=rule (required, min:N, max:N, pattern:RE)")

	return cmd
}

func runCheck(ctx context.Context, opts *CheckOptions, file string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := opts.formatter(cmd)

	v, err := schema.Load(opts.Schema, opts.Path)
	if err != nil {
		_ = f.Error(ErrCodeSchema, err.Error(), map[string]string{"schema": opts.Schema, "path": opts.Path})
		return WrapExitError(ExitCommandError, "failed to load schema", err)
	}

	vopts := []validate.Option{validate.WithSchema(v)}
	if len(opts.Rules) > 0 {
		reg, err := validate.RegistryFromRules(opts.Rules)
		if err != nil {
			_ = f.Error(ErrCodeInvalidInput, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid rule", err)
		}
		vopts = append(vopts, validate.WithCells(reg))
	}
	orch := validate.New(vopts...)

	data, err := os.ReadFile(file)
	if err != nil {
		_ = f.Error(ErrCodeNotFound, fmt.Sprintf("records file not readable: %s", file), nil)
		return WrapExitError(ExitCommandError, "failed to read records", err)
	}
	records, err := record.DecodeList(data)
	if err != nil {
		_ = f.Error(ErrCodeInvalidInput, err.Error(), map[string]string{"file": file})
		return WrapExitError(ExitCommandError, "failed to parse records", err)
	}
	f.VerboseLog("checking %d record(s) from %s against %s", len(records), file, opts.Path)

	ids := identity.New(nil, nil, nil)
	result := CheckResult{Records: make([]RecordResult, 0, len(records))}
	for i, rec := range records {
		fe, err := orch.Validate(ctx, rec, false)
		if err != nil {
			_ = f.Error(ErrCodeInvalidInput, err.Error(), map[string]int{"index": i})
			return WrapExitError(ExitCommandError, "validation could not run", err)
		}
		rr := RecordResult{Index: i, Valid: len(fe) == 0, Errors: fe}
		rr.Key, _ = ids.Natural(rec)
		if rr.Valid {
			result.Valid++
		} else {
			result.Invalid++
		}
		result.Records = append(result.Records, rr)
	}

	if f.JSON() {
		if result.Invalid > 0 {
			if err := f.Failure(ErrCodeInvalid, fmt.Sprintf("%d record(s) invalid", result.Invalid), result); err != nil {
				return err
			}
			return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) invalid", result.Invalid))
		}
		return f.Success(result)
	}
	return outputCheckText(f, result)
}

func outputCheckText(f *OutputFormatter, result CheckResult) error {
	w := f.Writer
	for _, rr := range result.Records {
		label := fmt.Sprintf("record %d", rr.Index)
		if rr.Key != "" {
			label += " (" + rr.Key + ")"
		}
		if rr.Valid {
			fmt.Fprintf(w, "✓ %s\n", label)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", label)
		for _, field := range rr.Errors.Fields() {
			fmt.Fprintf(w, "  %s: %s\n", field, strings.TrimSpace(rr.Errors[field]))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Summary: %d valid, %d invalid, %d total\n", result.Valid, result.Invalid, len(result.Records))
	if result.Invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) invalid", result.Invalid))
	}
	return nil
}
