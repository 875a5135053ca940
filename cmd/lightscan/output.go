package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nao1215/lightscan/internal/config"
	"github.com/nao1215/lightscan/internal/model"
	"github.com/nao1215/lightscan/internal/report"
)

// writeReport writes result in the configured format to the configured
// destination.
func writeReport(stdout io.Writer, cfg *config.Config, result *model.RunResult) error {
	output := stdout
	if cfg.OutputPath != "" {
		dir := filepath.Dir(cfg.OutputPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports can include URLs with credentials, so only the owner may read them.
		f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	w, err := report.NewWriter(cfg.OutputFormat, output, getVersion())
	if err != nil {
		return err
	}
	_, err = w.Write(result)
	return err
}
