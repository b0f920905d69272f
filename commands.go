package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stevemurr/restdb/client"
	"github.com/stevemurr/restdb/query"
)

// writeFunc is the shape of Client.Put, Client.Post and Client.Patch.
type writeFunc func(c *client.Client, ctx context.Context, path string, data any) (any, error)

// run builds a client, executes fn and prints its result as JSON.
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) (any, error)) error {
	c, err := o.newClient(cmd)
	if err != nil {
		return err
	}
	if o.showMetrics {
		defer printMetrics(cmd.ErrOrStderr(), c)
	}

	result, err := fn(cmd.Context(), c)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printMetrics(w io.Writer, c *client.Client) {
	data, _ := json.Marshal(c.Metrics())
	fmt.Fprintf(w, "metrics: %s\n", data)
}

// parseValue decodes a JSON command-line argument.
func parseValue(arg string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return nil, fmt.Errorf("invalid JSON value %q: %w", arg, err)
	}
	return v, nil
}

func newGetCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Read the value at a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, c *client.Client) (any, error) {
				return c.Get(ctx, args[0])
			})
		},
	}
}

func newDeleteCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <path>",
		Short: "Remove the value at a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, c *client.Client) (any, error) {
				return c.Delete(ctx, args[0])
			})
		},
	}
}

func newWriteCmd(o *rootOptions, name, short string, write writeFunc) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <path> <json>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseValue(args[1])
			if err != nil {
				return err
			}
			return o.run(cmd, func(ctx context.Context, c *client.Client) (any, error) {
				return write(c, ctx, args[0], data)
			})
		},
	}
}

func newFieldCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "field <path> <name>",
		Short: "Read one top-level field of the object at a path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, c *client.Client) (any, error) {
				v, ok, err := c.Node(args[0]).Field(ctx, args[1])
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, fmt.Errorf("field %q is not set at %q", args[1], args[0])
				}
				return v, nil
			})
		},
	}
}

func newSetFieldCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-field <path> <name> <json>",
		Short: "Write one field of the object at a path and print the merged object",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseValue(args[2])
			if err != nil {
				return err
			}
			return o.run(cmd, func(ctx context.Context, c *client.Client) (any, error) {
				return c.Node(args[0]).SetField(ctx, args[1], value)
			})
		},
	}
}

func newQueryCmd(o *rootOptions) *cobra.Command {
	var where []string

	cmd := &cobra.Command{
		Use:   "query <path>",
		Short: "Fetch a collection and keep the entries matching every --where",
		Example: `  restdb query users --where 'age>=18' --where 'role=="admin"'
  restdb query users --where 'email~=null'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			preds := make([]query.Predicate, 0, len(where))
			for _, expr := range where {
				p, err := query.ParseExpr(expr)
				if err != nil {
					return err
				}
				preds = append(preds, p)
			}
			return o.run(cmd, func(ctx context.Context, c *client.Client) (any, error) {
				q := c.Query(args[0])
				for _, p := range preds {
					q.Where(p.Field, string(p.Op), p.Value)
				}
				return q.Execute(ctx)
			})
		},
	}
	cmd.Flags().StringArrayVar(&where, "where", nil, "Predicate as field<op>value with op one of == ~= > >= < <=")
	return cmd
}
