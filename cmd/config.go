package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/lifeos/internal/config"
	"github.com/derickschaefer/lifeos/internal/render"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage lifeos configuration",
	Long: `Read and write lifeos configuration stored in config.json.

Detection thresholds live under "analysis" and model options under "energy";
both can be partial, missing fields keep their defaults.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config.json in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config.json already exists at %s (delete it first to re-initialise)", path)
		}
		if err := config.WriteFile(path, config.Template()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "  Edit it to tune detection thresholds or set db_path.")
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(globalFlags.DBPath)
		if err != nil {
			return err
		}

		src := "(not found)"
		if cfg.ConfigPath != "" {
			src = cfg.ConfigPath
		}

		format := cfg.Format
		if globalFlags.Format != "" {
			format = globalFlags.Format
		}

		if format == render.FormatJSON {
			type configOut struct {
				Format     string      `json:"default_format"`
				DBPath     string      `json:"db_path"`
				WindowDays int         `json:"window_days"`
				Analysis   interface{} `json:"analysis"`
				Energy     interface{} `json:"energy"`
				ConfigFile string      `json:"config_file"`
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(configOut{
				Format:     cfg.Format,
				DBPath:     cfg.DBPath,
				WindowDays: cfg.WindowDays,
				Analysis:   cfg.Analysis,
				Energy:     cfg.Energy,
				ConfigFile: src,
			})
		}

		rows := [][]string{
			{"default_format", cfg.Format},
			{"db_path", cfg.DBPath},
			{"window_days", strconv.Itoa(cfg.WindowDays)},
		}
		rows = append(rows, sectionRows("analysis", cfg.Analysis)...)
		rows = append(rows, sectionRows("energy", cfg.Energy)...)
		rows = append(rows, []string{"config_file", src})
		printKVTableTo(cmd.OutOrStdout(), rows)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in config.json",
	Long: `Set a top-level key (default_format, db_path, window_days) or a threshold
using a dotted key such as analysis.significance_level or energy.neutral_energy.`,
	Example: `  lifeos config set window_days 60
  lifeos config set analysis.min_day_diff_pct 15`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.ToLower(args[0])
		val := args[1]

		// Load existing file or start from template
		f, path, err := loadConfigFile()
		if err != nil {
			if !os.IsNotExist(err) {
				return err
			}
			path = config.DefaultConfigFile
			tmpl := config.Template()
			f = &tmpl
		}

		if err := setConfigKey(f, key, val); err != nil {
			return err
		}

		// Reject values that would make every later command fail.
		check := config.Config{WindowDays: f.WindowDays}
		if f.Analysis != nil {
			check.Analysis = *f.Analysis
		}
		if f.Energy != nil {
			check.Energy = *f.Energy
		}
		if err := check.Validate(); err != nil {
			return err
		}

		if err := config.WriteFile(path, *f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s in %s\n", key, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}

// loadConfigFile reads config.json from cwd over the template defaults, so
// partial sections come back complete.
func loadConfigFile() (*config.File, string, error) {
	path := config.DefaultConfigFile
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	f := config.Template()
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parsing %s: %w", path, err)
	}
	return &f, path, nil
}

// setConfigKey applies one key/value pair to f.
func setConfigKey(f *config.File, key, val string) error {
	switch key {
	case "default_format", "format":
		for _, known := range render.Formats {
			if val == known {
				f.DefaultFormat = val
				return nil
			}
		}
		return fmt.Errorf("unknown format %q (use %s)", val, strings.Join(render.Formats, "|"))
	case "db_path":
		f.DBPath = val
		return nil
	case "window_days":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("window_days must be an integer")
		}
		f.WindowDays = n
		return nil
	}

	section, field, ok := strings.Cut(key, ".")
	if !ok {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: default_format, db_path, window_days, analysis.<field>, energy.<field>", key)
	}
	switch section {
	case "analysis":
		return setSectionField(f.Analysis, section, field, val)
	case "energy":
		return setSectionField(f.Energy, section, field, val)
	}
	return fmt.Errorf("unknown config section %q", section)
}

// setSectionField sets one JSON field of a config section by round-tripping
// it through a generic map. The field must already exist.
func setSectionField(section interface{}, name, field, val string) error {
	data, err := json.Marshal(section)
	if err != nil {
		return err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if _, ok := m[field]; !ok {
		return fmt.Errorf("unknown %s field %q\n\nFields: %s", name, field, strings.Join(sortedKeys(m), ", "))
	}
	num, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fmt.Errorf("%s.%s must be a number", name, field)
	}
	m[field] = json.RawMessage(strconv.FormatFloat(num, 'f', -1, 64))
	data, err = json.Marshal(m)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, section); err != nil {
		return fmt.Errorf("%s.%s: %w", name, field, err)
	}
	return nil
}

// sectionRows flattens a config section into dotted key/value rows.
func sectionRows(name string, section interface{}) [][]string {
	data, _ := json.Marshal(section)
	var m map[string]json.RawMessage
	_ = json.Unmarshal(data, &m)
	rows := make([][]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		rows = append(rows, []string{name + "." + k, string(m[k])})
	}
	return rows
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
