package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewHooksCommand lists hooks and the handlers enabled modules attach to them.
func NewHooksCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hooks",
		Short: "List hooks and their handlers after booting enabled modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, err := opts.openRuntime(cmd.Context(), cmd, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			hooks := rt.Hooks()
			out := cmd.OutOrStdout()
			for _, name := range hooks.Hooks() {
				fmt.Fprintln(out, titleStyle.Render(name))
				handlers := hooks.Handlers(name)
				if len(handlers) == 0 {
					fmt.Fprintln(out, dimStyle.Render("  (no handlers)"))
					continue
				}
				for _, h := range handlers {
					label := h.Name
					if label == "" {
						label = fmt.Sprintf("#%d", h.Ref.ID)
					}
					fmt.Fprintf(out, "  %4d  %-12s %s\n", h.Priority, h.Owner, label)
				}
			}
			return nil
		},
	}
}
