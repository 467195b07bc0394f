package main

import (
	"io"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	storage    string
	dbPath     string
	logLevel   string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:           "toolchat",
		Short:         "Chat with a model that can call your functions",
		Long:          "toolchat streams chat completions from an OpenAI-compatible API and runs the functions the model asks for in a sandboxed runtime.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&flags.storage, "storage", "", "storage driver override: memory, sqlite or redis")
	root.PersistentFlags().StringVar(&flags.dbPath, "db", "", "sqlite database path override")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level override: debug, info, warn, error")

	root.AddCommand(newChatCmd(&flags), newFunctionsCmd(&flags))
	return root
}
