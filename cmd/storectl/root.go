/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/suparena/storemodel"
	"github.com/suparena/storemodel/config"
	"github.com/suparena/storemodel/docstore"
	"github.com/suparena/storemodel/errors"
	sm "github.com/suparena/storemodel/storagemodels"
)

type options struct {
	configPath string
	backend    string
	collection string

	client *storemodel.Client
}

// newRootCommand returns the command tree and a func releasing the store it
// opened.
func newRootCommand() (*cobra.Command, func()) {
	opts := &options{}
	root := &cobra.Command{
		Use:           "storectl",
		Short:         "Inspect and edit documents of a storemodel collection",
		SilenceUsage: true,
		Version:      storemodel.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if offline[cmd.Name()] {
				return nil
			}
			return opts.open(cmd)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&opts.backend, "backend", "", "backend override: memory, sqlite or dynamodb")
	root.PersistentFlags().StringVarP(&opts.collection, "collection", "c", "", "collection to operate on")

	root.AddCommand(
		getCommand(opts),
		listCommand(opts),
		queryCommand(opts),
		putCommand(opts),
		updateCommand(opts),
		deleteCommand(opts),
		countCommand(opts),
		incrCommand(opts),
		watchCommand(opts),
		versionCommand(),
	)
	return root, opts.close
}

// offline commands run without a store.
var offline = map[string]bool{"version": true, "help": true, "completion": true}

func (o *options) close() {
	if o.client != nil {
		_ = o.client.Close()
		o.client = nil
	}
}

func (o *options) open(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return report(cmd, err)
	}
	if o.backend != "" {
		cfg.Backend = o.backend
	}
	client, err := storemodel.Open(cmd.Context(), cfg)
	if err != nil {
		return report(cmd, err)
	}
	o.client = client
	return nil
}

func (o *options) store() (docstore.Store, error) {
	if o.collection == "" {
		return nil, errors.NewValidationError("collection", "set with --collection")
	}
	return o.client.Collection(o.collection)
}

// run executes op against the selected collection and prints its result.
func (o *options) run(cmd *cobra.Command, op func(docstore.Store) sm.Result) error {
	store, err := o.store()
	if err != nil {
		return report(cmd, err)
	}
	res := op(store)
	if err := printResult(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("%s: %w", res.Message, res.Err)
	}
	return nil
}

func printResult(w io.Writer, res sm.Result) error {
	out := struct {
		sm.Result
		Error string `json:"error,omitempty"`
	}{Result: res}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}

// report prints err as an error envelope.
func report(cmd *cobra.Command, err error) error {
	_ = printResult(cmd.ErrOrStderr(), sm.Failure(err.Error(), err))
	return err
}

func decodeJSON(flag, raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return errors.NewValidationError(flag, err.Error())
	}
	return nil
}
