package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func skillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skill",
		Short: "List and run skills",
	}
	cmd.AddCommand(skillListCmd())
	cmd.AddCommand(skillRunCmd())
	return cmd
}

func skillListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List loaded skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			svcCtx, err := buildContext(ctx)
			if err != nil {
				return err
			}
			defer svcCtx.Close()

			loaded := svcCtx.Skills.List()
			if len(loaded) == 0 {
				fmt.Printf("No skills found in %s\n", svcCtx.Config.SkillsDir())
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tDESCRIPTION")
			for _, s := range loaded {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Category, s.Description)
			}
			return w.Flush()
		},
	}
}

func skillRunCmd() *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Execute a skill by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			svcCtx, err := buildContext(ctx)
			if err != nil {
				return err
			}
			defer svcCtx.Close()

			kv := make(map[string]string, len(params))
			for _, p := range params {
				key, value, ok := strings.Cut(p, "=")
				if !ok {
					return fmt.Errorf("bad --param %q, want key=value", p)
				}
				kv[key] = value
			}

			out, err := svcCtx.Skills.Execute(ctx, args[0], kv)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "template parameter key=value (repeatable)")
	return cmd
}
