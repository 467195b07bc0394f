package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kristerhedfors/toolcall"
)

func newFunctionsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "functions",
		Aliases: []string{"fn"},
		Short:   "Manage registered functions",
	}
	cmd.AddCommand(
		newFunctionsListCmd(flags),
		newFunctionsAddCmd(flags),
		newFunctionsToggleCmd(flags, "enable", "Enable a function so the model can call it", (*toolcall.Registry).Enable),
		newFunctionsToggleCmd(flags, "disable", "Disable a function", (*toolcall.Registry).Disable),
		newFunctionsRemoveCmd(flags),
	)
	return cmd
}

func newFunctionsListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List functions and whether they are enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSOURCE\tENABLED\tDESCRIPTION")
			for _, e := range a.reg.Entries() {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", e.Name, e.Source.Kind, a.reg.IsEnabled(e.Name), e.Definition.Description)
			}
			return tw.Flush()
		},
	}
}

func newFunctionsAddCmd(flags *rootFlags) *cobra.Command {
	var (
		description string
		params      string
		code        string
		codeFile    string
		group       string
		enable      bool
	)
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a user-defined function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if codeFile != "" {
				data, err := os.ReadFile(codeFile)
				if err != nil {
					return fmt.Errorf("read code: %w", err)
				}
				code = string(data)
			}
			schema := map[string]any{"type": "object", "properties": map[string]any{}}
			if strings.TrimSpace(params) != "" {
				if err := json.Unmarshal([]byte(params), &schema); err != nil {
					return fmt.Errorf("parse --params: %w", err)
				}
			}
			a, err := newApp(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			def := toolcall.ToolDefinition{Name: name, Description: description, Parameters: schema}
			if err := a.reg.Add(name, code, def, group); err != nil {
				return err
			}
			if enable {
				if err := a.reg.Enable(name); err != nil {
					return err
				}
			}
			if err := a.save(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "description shown to the model")
	cmd.Flags().StringVarP(&params, "params", "p", "", "JSON Schema of the parameters object")
	cmd.Flags().StringVar(&code, "code", "", "function source")
	cmd.Flags().StringVarP(&codeFile, "file", "f", "", "read function source from a file")
	cmd.Flags().StringVarP(&group, "group", "g", "", "group id shared with related functions")
	cmd.Flags().BoolVarP(&enable, "enable", "e", false, "enable the function right away")
	cmd.MarkFlagsMutuallyExclusive("code", "file")
	cmd.MarkFlagsOneRequired("code", "file")
	return cmd
}

func newFunctionsToggleCmd(flags *rootFlags, use, short string, apply func(*toolcall.Registry, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := apply(a.reg, args[0]); err != nil {
				return err
			}
			if err := a.save(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%sd %s\n", use, args[0])
			return nil
		},
	}
}

func newFunctionsRemoveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a function and every function in its group",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			removed, err := a.reg.Remove(args[0])
			if err != nil {
				return err
			}
			if err := a.save(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", strings.Join(removed, ", "))
			return nil
		},
	}
}
