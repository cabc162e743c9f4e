package commands

import (
	"errors"

	"github.com/spf13/cobra"
)

func refCmd(a *app) *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:               "ref",
		Short:             "Manage documents in a table",
		PersistentPreRunE: a.requireDatabaseHook,
	}
	cmd.PersistentFlags().StringVar(&table, "table", "", "table uid")
	_ = cmd.MarkPersistentFlagRequired("table")

	var q queryFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.query()
			if err != nil {
				return err
			}
			res, err := a.client.Refs.List(cmd.Context(), table, query)
			if err != nil {
				return err
			}
			return printJSON(a.out, res)
		},
	}
	q.bind(list)

	get := &cobra.Command{
		Use:   "get <uid>",
		Short: "Show one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.client.Refs.Get(cmd.Context(), table, args[0])
			if err != nil {
				return err
			}
			return printJSON(a.out, ref)
		},
	}

	var createData string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseData(createData)
			if err != nil {
				return err
			}
			ref, err := a.client.Refs.Create(cmd.Context(), table, data)
			if err != nil {
				return err
			}
			return printJSON(a.out, ref)
		},
	}
	create.Flags().StringVar(&createData, "data", "", "document as JSON")

	var patchData string
	patch := &cobra.Command{
		Use:   "patch <uid>",
		Short: "Merge fields into a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseData(patchData)
			if err != nil {
				return err
			}
			ref, err := a.client.Refs.Patch(cmd.Context(), table, args[0], data)
			if err != nil {
				return err
			}
			return printJSON(a.out, ref)
		},
	}
	patch.Flags().StringVar(&patchData, "data", "", "fields to change as JSON")

	var replaceData string
	replace := &cobra.Command{
		Use:   "replace <uid>",
		Short: "Replace a document's data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseData(replaceData)
			if err != nil {
				return err
			}
			ref, err := a.client.Refs.Replace(cmd.Context(), table, args[0], data)
			if err != nil {
				return err
			}
			return printJSON(a.out, ref)
		},
	}
	replace.Flags().StringVar(&replaceData, "data", "", "new document as JSON")

	del := &cobra.Command{
		Use:   "delete <uid>...",
		Short: "Delete documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			for _, uid := range args {
				errs = append(errs, a.client.Refs.Delete(cmd.Context(), table, uid))
			}
			return errors.Join(errs...)
		},
	}

	cmd.AddCommand(list, get, create, patch, replace, del)
	return cmd
}
