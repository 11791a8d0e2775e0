package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/linustan/komatachi/pkg/config"
)

// newDoctorCommand validates everything run would otherwise fail on
// mid-session: credential presence, that dataDir can be created and written
// to, and that homeDir exists and is a directory. It never touches the
// network.
func newDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check credentials and storage paths without starting a session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return runDoctor(cmd.OutOrStdout(), cfg)
		},
	}
}

func runDoctor(out io.Writer, cfg *config.Config) error {
	ok := true

	report := func(label string, err error) {
		if err != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", label, err)
			ok = false
			return
		}
		fmt.Fprintf(out, "✓ %s\n", label)
	}

	if cfg.AnthropicAPIKey == "" {
		report("ANTHROPIC_API_KEY", fmt.Errorf("not set"))
	} else {
		report("ANTHROPIC_API_KEY", nil)
	}

	report("data dir "+cfg.DataDir, checkWritableDir(cfg.DataDir))
	report("home dir "+cfg.HomeDir, checkReadableDir(cfg.HomeDir))

	if !ok {
		return fmt.Errorf("doctor found problems, see above")
	}
	return nil
}

func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := dir + "/.komatachi-doctor-probe"
	f, err := os.Create(probe)
	if err != nil {
		return err
	}
	f.Close()
	return os.Remove(probe)
}

func checkReadableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
