/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Command storectl reads and writes documents of a configured store.
//
//	storectl --config storemodel.yaml -c Players put ada --data '{"rating":1500}'
//	storectl -c Players list --where '[{"key":"rating","operator":">=","value":1400}]' --order rating
//	storectl -c Players watch ada
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, cleanup := newRootCommand()
	err := root.ExecuteContext(ctx)
	cleanup()
	if err != nil {
		os.Exit(1)
	}
}
