package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/isocatalog/internal/catalog"
	"github.com/JakeFAU/isocatalog/internal/storage/local"
)

func newBuildCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Builds the catalog and writes it as JSON",
		Long: `Runs every configured source, drops releases whose download links are not
reachable, and writes the sorted catalog as indented JSON to stdout or --output.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := runBuild(cmd, output); err != nil {
				closeApp(cmd)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the catalog to this file instead of stdout")
	return cmd
}

func runBuild(cmd *cobra.Command, output string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	entries := appInstance.BuildCatalog(cmd.Context())
	if err := cmd.Context().Err(); err != nil {
		return fmt.Errorf("build interrupted: %w", err)
	}
	catalog.Sort(entries)

	fingerprint, err := appInstance.Fingerprint(entries)
	if err != nil {
		return fmt.Errorf("fingerprint catalog: %w", err)
	}
	logger.Info("Catalog built",
		zap.Int("entries", len(entries)),
		zap.String("fingerprint", fingerprint),
	)

	if output == "" {
		return writeCatalog(cmd.OutOrStdout(), entries)
	}
	var buf bytes.Buffer
	if err := writeCatalog(&buf, entries); err != nil {
		return err
	}
	store, err := local.New(local.Config{BaseDir: filepath.Dir(output)})
	if err != nil {
		return fmt.Errorf("open output directory: %w", err)
	}
	uri, err := store.Put(cmd.Context(), filepath.Base(output), buf.Bytes())
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	logger.Info("Catalog written", zap.String("uri", uri))
	return nil
}

func writeCatalog(w io.Writer, entries []catalog.Entry) error {
	if entries == nil {
		entries = []catalog.Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}
