package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func taskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "task [goal...]",
		Short: "Run one goal to completion and print the outcome",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(strings.Join(args, " "))
		},
	}
}

func runTask(goal string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	svcCtx, err := buildContext(ctx)
	if err != nil {
		return err
	}
	defer svcCtx.Close()

	resp, err := svcCtx.Agent.RunTask(ctx, goal)
	if err != nil {
		return err
	}
	fmt.Println(resp)
	return nil
}
