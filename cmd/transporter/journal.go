package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"journaltransporter/internal/ingest"
)

func (c *cli) importJournalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-journal <file>",
		Short: "Import one journal payload (JSON, or YAML for .yaml/.yml) into the local store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ingest.DecodeFile(args[0])
			if err != nil {
				return c.fail(err)
			}

			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Importer.ImportSingle(cmd.Context(), p)
			if err != nil {
				return c.fail(err)
			}

			verb := "updated"
			if res.Created {
				verb = "created"
			}
			fmt.Fprintf(c.stdout, "%s journal %q (%s): %d sections, %d issues, %d articles, %d authors\n",
				verb, res.Journal.Code, res.Journal.SourceRecordKey, res.Sections, res.Issues, res.Articles, res.Authors)
			return nil
		},
	}
}

func (c *cli) exportJournalCmd() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export-journal <path>",
		Short: "Print a stored journal in the import payload shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.Importer.Export(cmd.Context(), args[0])
			if err != nil {
				return c.fail(err)
			}

			w := c.stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return c.fail(fmt.Errorf("create %s: %w", output, err))
				}
				defer f.Close()
				w = f
			}
			if err := writePayload(w, format, out); err != nil {
				return c.fail(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format (json, yaml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func writePayload(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
