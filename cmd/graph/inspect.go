package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pipelined.dev/graph/message"
	"pipelined.dev/graph/patch"
)

func newDotCommand(o *options) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "dot PATCH",
		Short: "Print the graph of the patch in graphviz format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := o.load(args[0])
			if err != nil {
				return err
			}
			if out != "" {
				return g.WriteDot(out)
			}
			return g.WriteDotTo(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to the file instead of stdout")
	return cmd
}

func newParamsCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "params PATCH",
		Short: "List params of the patch with initial values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := o.load(args[0])
			if err != nil {
				return err
			}
			for _, name := range g.ParamNames() {
				p, _ := g.Param(name)
				v, ok := p.Value()
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%v\n", name, message.None)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%v\t%v\n", name, v.Kind(), v)
			}
			return nil
		},
	}
}

func newKindsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List node kinds supported in patches",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, k := range patch.Kinds() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
		},
	}
}
