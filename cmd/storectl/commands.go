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
	"github.com/suparena/storemodel/docstore"
	"github.com/suparena/storemodel/errors"
	sm "github.com/suparena/storemodel/storagemodels"
)

func getCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>...",
		Short: "Fetch documents by reference",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(s docstore.Store) sm.Result {
				if len(args) == 1 {
					return s.Find(cmd.Context(), args[0])
				}
				return s.FindAll(cmd.Context(), args...)
			})
		},
	}
}

type pageFlags struct {
	where  string
	order  string
	offset string
	limit  int
}

func (p *pageFlags) bind(cmd *cobra.Command, whereUsage string) {
	cmd.Flags().StringVar(&p.where, "where", "", whereUsage)
	cmd.Flags().StringVar(&p.order, "order", "", "field to order by")
	cmd.Flags().StringVar(&p.offset, "offset", "", "reference of the document to start after")
	cmd.Flags().IntVar(&p.limit, "limit", 0, "maximum number of documents")
}

func (p *pageFlags) clauses() ([]sm.WhereClause, error) {
	var where []sm.WhereClause
	if p.where != "" {
		if err := decodeJSON("where", p.where, &where); err != nil {
			return nil, err
		}
	}
	return where, nil
}

func listCommand(o *options) *cobra.Command {
	var p pageFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents, optionally filtered by AND-ed clauses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			where, err := p.clauses()
			if err != nil {
				return report(cmd, err)
			}
			return o.run(cmd, func(s docstore.Store) sm.Result {
				if where == nil && p.order == "" && p.offset == "" && p.limit == 0 {
					return s.FindAll(cmd.Context())
				}
				return s.FindWhere(cmd.Context(), sm.WhereParams{Where: where, Order: p.order, Offset: p.offset, Limit: p.limit})
			})
		},
	}
	p.bind(cmd, `JSON clause list, e.g. [{"key":"age","operator":">","value":30}]`)
	return cmd
}

func queryCommand(o *options) *cobra.Command {
	var p pageFlags
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a combined and/or query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var combined *sm.CombinedWhere
			if p.where != "" {
				combined = &sm.CombinedWhere{}
				if err := decodeJSON("where", p.where, combined); err != nil {
					return report(cmd, err)
				}
			}
			return o.run(cmd, func(s docstore.Store) sm.Result {
				return s.FindWhereOrAnd(cmd.Context(), sm.CombinedParams{Where: combined, Order: p.order, Offset: p.offset, Limit: p.limit})
			})
		},
	}
	p.bind(cmd, `JSON combined clause, e.g. {"type":"or","parameter":[{"key":"a","operator":"==","value":1,"type":"or"}]}`)
	return cmd
}

// readDocument reads --data, or stdin when it is "-".
func readDocument(cmd *cobra.Command, data string) (map[string]any, error) {
	if data == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		data = string(raw)
	}
	doc := map[string]any{}
	if err := decodeJSON("data", data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func putCommand(o *options) *cobra.Command {
	var data string
	var batch bool
	cmd := &cobra.Command{
		Use:   "put [id]",
		Short: "Create a document, or replace the document at id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if batch {
				var docs []map[string]any
				if err := decodeJSON("data", data, &docs); err != nil {
					return report(cmd, err)
				}
				return o.run(cmd, func(s docstore.Store) sm.Result {
					return s.SaveBatch(cmd.Context(), docs)
				})
			}
			doc, err := readDocument(cmd, data)
			if err != nil {
				return report(cmd, err)
			}
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return o.run(cmd, func(s docstore.Store) sm.Result {
				return s.Save(cmd.Context(), doc, id)
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "-", "JSON document, - reads stdin")
	cmd.Flags().BoolVar(&batch, "batch", false, "data is a JSON list of documents created atomically")
	return cmd
}

func updateCommand(o *options) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Merge fields into an existing document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd, data)
			if err != nil {
				return report(cmd, err)
			}
			return o.run(cmd, func(s docstore.Store) sm.Result {
				return s.Update(cmd.Context(), doc, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "-", "JSON fields, - reads stdin")
	return cmd
}

func deleteCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(s docstore.Store) sm.Result {
				if len(args) == 1 {
					return s.Delete(cmd.Context(), args[0])
				}
				return s.DeleteBatch(cmd.Context(), args)
			})
		},
	}
}

func countCommand(o *options) *cobra.Command {
	var where string
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count documents matching AND-ed clauses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := pageFlags{where: where}
			clauses, err := p.clauses()
			if err != nil {
				return report(cmd, err)
			}
			return o.run(cmd, func(s docstore.Store) sm.Result {
				return s.CountData(cmd.Context(), clauses)
			})
		},
	}
	cmd.Flags().StringVar(&where, "where", "", "JSON clause list")
	return cmd
}

func incrCommand(o *options) *cobra.Command {
	var by float64
	var decrement bool
	cmd := &cobra.Command{
		Use:   "incr <id> <field>",
		Short: "Atomically increment or decrement a numeric field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(s docstore.Store) sm.Result {
				return s.IncrementDecrement(cmd.Context(), sm.IncrementParams{
					DBReference:      args[0],
					Key:              args[1],
					IsIncrement:      !decrement,
					IncrementalValue: &by,
				})
			})
		},
	}
	cmd.Flags().Float64Var(&by, "by", 1, "amount to move the field by")
	cmd.Flags().BoolVar(&decrement, "decrement", false, "decrement instead of increment")
	return cmd
}

func watchCommand(o *options) *cobra.Command {
	var where string
	cmd := &cobra.Command{
		Use:   "watch [id]",
		Short: "Print the document, collection or query result on every change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if where != "" && len(args) == 1 {
				return report(cmd, errors.NewValidationError("where", "cannot be combined with a document id"))
			}
			store, err := o.store()
			if err != nil {
				return report(cmd, err)
			}
			out := cmd.OutOrStdout()
			fn := func(res sm.Result) { _ = printResult(out, res) }

			var res sm.Result
			switch {
			case where != "":
				p := pageFlags{where: where}
				clauses, err := p.clauses()
				if err != nil {
					return report(cmd, err)
				}
				res = store.StreamWhere(cmd.Context(), fn, sm.WhereParams{Where: clauses})
			case len(args) == 1:
				res = store.Stream(cmd.Context(), fn, args[0])
			default:
				res = store.Stream(cmd.Context(), fn, "")
			}
			if !res.OK() {
				_ = printResult(cmd.ErrOrStderr(), res)
				return res.Err
			}
			sub := res.Data.(sm.Subscription)
			<-sub.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&where, "where", "", "watch the result of a JSON clause list instead")
	return cmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := json.MarshalIndent(storemodel.GetVersionInfo(), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return err
		},
	}
}
