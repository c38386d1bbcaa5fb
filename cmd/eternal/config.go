package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Abhay-404/Eternal-Memory/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every setting with its effective value",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return writeSettings(cmd.OutOrStdout(), config.ShowAll(cfg))
	},
}

// writeSettings prints one aligned row per key: name, value, override variable.
func writeSettings(w io.Writer, keys []config.KeyInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		value := k.Value
		if value == "" {
			value = "(unset)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", colorize(colorBold, k.Key), value, colorize(colorCyan, k.EnvVar))
	}
	return tw.Flush()
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist a setting",
	Long:  "Persist a setting in the platform settings store. Keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("%s = %s", args[0], args[1])
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Drop a persisted setting so the default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("%s reset to default", args[0])
		return nil
	},
}

var configSetOpenAIKeyCmd = &cobra.Command{
	Use:   "set-openai-key",
	Short: "Store the OpenAI API key as a secret",
	Long:  "Store the OpenAI API key in the platform secret store. The key is read from stdin.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		fmt.Fprint(stderr, "OpenAI API key: ")
		key, err := readSecretLine(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if err := config.SetOpenAIKey(config.NewKeychain(), key); err != nil {
			return err
		}
		printSuccess("OpenAI API key stored")
		return nil
	},
}

func readSecretLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading key: %w", err)
	}
	if line = strings.TrimSpace(line); line == "" {
		return "", errors.New("no key given")
	}
	return line, nil
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configUnsetCmd, configSetOpenAIKeyCmd)
}
