package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/logsieve/logsieve/internal/accesslog"
	"github.com/logsieve/logsieve/internal/config"
	"github.com/logsieve/logsieve/internal/registry"
	"github.com/logsieve/logsieve/internal/server"
)

// scanBatchSize is the number of records classified per pipeline call.
const scanBatchSize = 1000

func newScanCmd() *cobra.Command {
	var input string
	var attacksOnly bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Classify access-log records from a JSON-lines file",
		Long: "Reads one JSON record per line from the input file (or stdin with -)," +
			" classifies each, and writes one verdict JSON object per line to stdout.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return scan(cmd, cfg, input, attacksOnly)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "Input file, - for stdin")
	cmd.Flags().BoolVar(&attacksOnly, "attacks-only", false, "Print only records judged attacks")

	return cmd
}

type scanResult struct {
	Record  accesslog.Record  `json:"record"`
	Verdict accesslog.Verdict `json:"verdict"`
}

func scan(cmd *cobra.Command, cfg *config.Config, input string, attacksOnly bool) error {
	logger := server.SetupLogger(cfg.LogLevel)

	var in io.Reader = cmd.InOrStdin()
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	table, err := loadTable(cfg)
	if err != nil {
		return err
	}
	reg := registry.New(cfg.ModelDir, logger)
	pipeline, _, err := buildPipeline(cfg, table, reg, logger)
	if err != nil {
		return err
	}

	out := json.NewEncoder(cmd.OutOrStdout())
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var batch []accesslog.Record
	line := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		verdicts, err := pipeline.Predict(cmd.Context(), batch)
		if err != nil {
			return err
		}
		for i, v := range verdicts {
			if attacksOnly && !v.IsAttack {
				continue
			}
			if err := out.Encode(scanResult{Record: batch[i], Verdict: v}); err != nil {
				return err
			}
		}
		batch = batch[:0]
		return nil
	}

	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec accesslog.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		batch = append(batch, rec)
		if len(batch) >= scanBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}
