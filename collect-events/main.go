// Command collect-events summarises the API's observability events from a
// JSON log stream.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

func main() {
	if err := newCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	var (
		outPath     string
		eventName   string
		eventDomain string
	)
	cmd := &cobra.Command{
		Use:          "collect-events [LOGFILE]",
		Short:        "Aggregate observability events read from a log file or stdin",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			c := newCollector(eventName, eventDomain)
			if err := readLines(in, c.ingest); err != nil {
				return fmt.Errorf("read logs: %w", err)
			}
			summary := c.summary()

			if outPath != "" {
				if err := writeSummary(outPath, summary); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary.ShortString())
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "write the full JSON summary to this path")
	cmd.Flags().StringVar(&eventName, "event-name", defaultEventName, "event name to collect")
	cmd.Flags().StringVar(&eventDomain, "event-domain", defaultEventDomain, "event domain to match, empty for any")
	return cmd
}

func readLines(r io.Reader, fn func(string)) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) != 0 {
			fn(line)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func writeSummary(path string, summary summaryOutput) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	data, err := sonic.ConfigStd.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
