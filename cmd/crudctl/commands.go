package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// entity is passed through untouched; the server owns the schema.
type entity = json.RawMessage

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <resource>",
		Short: "List every entity of a resource",
		Example: `  crudctl list widgets
  crudctl list notes --server https://crud.example.com`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.newClient(args[0])
			if err != nil {
				return err
			}
			entities, err := cl.GetAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("list %s: %w", args[0], err)
			}
			if entities == nil {
				entities = []entity{}
			}
			return printJSON(cmd.OutOrStdout(), entities)
		},
	}
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <resource> <id>",
		Short:   "Get an entity by ID",
		Example: `  crudctl get widgets 7`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.newClient(args[0])
			if err != nil {
				return err
			}
			e, ok, err := cl.GetOne(cmd.Context(), args[1])
			if err != nil {
				return fmt.Errorf("get %s/%s: %w", args[0], args[1], err)
			}
			if !ok {
				return fmt.Errorf("%s/%s not found", args[0], args[1])
			}
			return printJSON(cmd.OutOrStdout(), e)
		},
	}
}

func (c *cli) createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <resource> [json]",
		Short: "Create an entity",
		Long:  "Create sends the JSON document given as argument, or read from stdin when omitted.",
		Example: `  crudctl create widgets '{"name":"Sprocket","price_cents":250}'
  cat note.json | crudctl create notes`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readEntity(cmd.InOrStdin(), args[1:])
			if err != nil {
				return err
			}
			cl, err := c.newClient(args[0])
			if err != nil {
				return err
			}
			created, err := cl.Put(cmd.Context(), body)
			if err != nil {
				return fmt.Errorf("create %s: %w", args[0], err)
			}
			return printJSON(cmd.OutOrStdout(), created)
		},
	}
}

func (c *cli) updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "update <resource> <id> [json]",
		Short:   "Update an entity",
		Long:    "Update sends the JSON document given as argument, or read from stdin when omitted.",
		Example: `  crudctl update widgets 7 '{"id":7,"name":"Sprocket","price_cents":300}'`,
		Args:    cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readEntity(cmd.InOrStdin(), args[2:])
			if err != nil {
				return err
			}
			cl, err := c.newClient(args[0])
			if err != nil {
				return err
			}
			updated, err := cl.Push(cmd.Context(), args[1], body)
			if err != nil {
				return fmt.Errorf("update %s/%s: %w", args[0], args[1], err)
			}
			return printJSON(cmd.OutOrStdout(), updated)
		},
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <resource> <id>",
		Short:   "Delete an entity",
		Example: `  crudctl delete notes 2f1c9e4a-5b7d-4c1e-9a3f-6d8b0e2c4a17`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.newClient(args[0])
			if err != nil {
				return err
			}
			ok, err := cl.Delete(cmd.Context(), args[1])
			if err != nil {
				return fmt.Errorf("delete %s/%s: %w", args[0], args[1], err)
			}
			if !ok {
				return fmt.Errorf("delete %s/%s: rejected by server", args[0], args[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s/%s\n", args[0], args[1])
			return nil
		},
	}
}

// readEntity takes the document from args when present, otherwise stdin.
func readEntity(stdin io.Reader, args []string) (entity, error) {
	var raw []byte
	if len(args) > 0 {
		raw = []byte(args[0])
	} else {
		var err error
		if raw, err = io.ReadAll(stdin); err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("no JSON document given")
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("invalid JSON document: %s", strings.TrimSpace(string(raw)))
	}
	return entity(raw), nil
}

func printJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}
