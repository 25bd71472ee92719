package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bearhedge/APEYOLO-sub001/internal/planner"
)

// newClassifyCmd 在不连接任何后端的情况下查看一句话会走哪条计划
func newClassifyCmd() *cobra.Command {
	var symbol string
	cmd := &cobra.Command{
		Use:   "classify <text>",
		Short: "Show the category and tool plan for a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, _ := planner.Match(planner.DefaultRules, strings.Join(args, " "))
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "category: %s\n", cat)

			plan, ok := planner.Expand(cat, symbol)
			if !ok {
				fmt.Fprintln(out, "plan: none (model path)")
				return nil
			}
			for _, s := range plan.Steps {
				tool := s.Tool
				if tool == "" {
					tool = "-"
				}
				fmt.Fprintf(out, "  [%d] %-10s %-16s %s\n", s.Stage, s.ID, tool, s.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "SPY", "underlying symbol")
	return cmd
}
