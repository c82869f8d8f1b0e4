package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/modhooks/boot"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewModulesCommand creates the modules command group.
func NewModulesCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "modules",
		Aliases: []string{"module", "mod"},
		Short:   "List and manage feature modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newModulesListCommand(opts))
	cmd.AddCommand(newModulesInstallCommand(opts))
	cmd.AddCommand(newTransitionCommand(opts, "enable", "Enable an installed module", func(c *cobra.Command, rt *boot.Runtime, id string) error {
		return rt.Lifecycle().Enable(c.Context(), id)
	}))
	cmd.AddCommand(newTransitionCommand(opts, "disable", "Disable an enabled module", func(c *cobra.Command, rt *boot.Runtime, id string) error {
		return rt.Lifecycle().Disable(c.Context(), id)
	}))
	cmd.AddCommand(newTransitionCommand(opts, "uninstall", "Uninstall a disabled module", func(c *cobra.Command, rt *boot.Runtime, id string) error {
		return rt.Lifecycle().Uninstall(c.Context(), id)
	}))
	return cmd
}

func newModulesListCommand(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered and installed modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, err := opts.openRuntime(cmd.Context(), cmd, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			modules, err := rt.Lifecycle().ListModules(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(modules)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderModules(modules))
			for _, err := range rt.Registry().Errors() {
				fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render("skipped: "+err.Error()))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newModulesInstallCommand(opts *globalOptions) *cobra.Command {
	var (
		sets   []string
		enable bool
	)
	cmd := &cobra.Command{
		Use:   "install <id>",
		Short: "Install a discovered module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseSets(sets)
			if err != nil {
				return err
			}
			rt, _, err := opts.openRuntime(cmd.Context(), cmd, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			id := args[0]
			if err := rt.Lifecycle().InstallWithConfig(cmd.Context(), id, overrides); err != nil {
				return err
			}
			if enable {
				if err := rt.Lifecycle().Enable(cmd.Context(), id); err != nil {
					return err
				}
			}
			return printStatus(cmd, rt, id)
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Config override as key=value; values are parsed as YAML scalars")
	cmd.Flags().BoolVar(&enable, "enable", false, "Enable the module after installing it")
	return cmd
}

type transitionFunc func(cmd *cobra.Command, rt *boot.Runtime, id string) error

func newTransitionCommand(opts *globalOptions, use, short string, fn transitionFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, err := opts.openRuntime(cmd.Context(), cmd, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := fn(cmd, rt, args[0]); err != nil {
				return err
			}
			if use == "uninstall" {
				fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("uninstalled "+args[0]))
				return nil
			}
			return printStatus(cmd, rt, args[0])
		},
	}
}

func printStatus(cmd *cobra.Command, rt *boot.Runtime, id string) error {
	status, err := rt.Lifecycle().ModuleStatus(cmd.Context(), id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", status.ID, stateStyle(status.State).Render(string(status.State)))
	return nil
}

// parseSets turns key=value flags into a config map. Dotted keys build
// nested maps, so "gear.slots=4" becomes {"gear": {"slots": 4}}.
func parseSets(sets []string) (map[string]any, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	out := make(map[string]any)
	for _, s := range sets {
		key, raw, ok := strings.Cut(s, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: want key=value", s)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		parts := strings.Split(key, ".")
		m := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = value
	}
	return out, nil
}
