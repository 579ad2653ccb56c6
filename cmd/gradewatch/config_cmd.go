package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gradewatch/gradewatch/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Run: func(cmd *cobra.Command, args []string) {
		settings := redactSecrets(config.AllSettings())
		out, err := yaml.Marshal(settings)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if file := config.ConfigFileUsed(); file != "" {
			fmt.Printf("# %s\n", file)
		}
		fmt.Print(string(out))
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// redactSecrets masks credential values so config show output is safe
// to paste into bug reports.
func redactSecrets(settings map[string]any) map[string]any {
	return redactMap(settings, "").(map[string]any)
}

func redactMap(v any, path string) any {
	m, ok := v.(map[string]any)
	if !ok {
		if isSecretKey(path) {
			if s, ok := v.(string); ok && s != "" {
				return "***"
			}
		}
		return v
	}
	out := make(map[string]any, len(m))
	for k, child := range m {
		childPath := k
		if path != "" {
			childPath = path + "." + k
		}
		out[k] = redactMap(child, childPath)
	}
	return out
}

func isSecretKey(path string) bool {
	for _, suffix := range []string{"key", "secret", "token", "password", "api_key"} {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}
