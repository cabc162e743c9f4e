package commands

import (
	"github.com/spf13/cobra"

	"github.com/sodular/sodular-go/internal/model"
)

func dbCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage databases",
	}

	var q queryFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List databases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.query()
			if err != nil {
				return err
			}
			res, err := a.client.Databases.List(cmd.Context(), query)
			if err != nil {
				return err
			}
			return printJSON(a.out, res)
		},
	}
	q.bind(list)

	get := &cobra.Command{
		Use:   "get <uid>",
		Short: "Show one database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.client.Databases.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(a.out, db)
		},
	}

	var data model.DatabaseData
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.client.Databases.Create(cmd.Context(), data)
			if err != nil {
				return err
			}
			return printJSON(a.out, db)
		},
	}
	create.Flags().StringVar(&data.Name, "name", "", "database name")
	create.Flags().StringVar(&data.Description, "description", "", "description")
	_ = create.MarkFlagRequired("name")

	del := &cobra.Command{
		Use:   "delete <uid>",
		Short: "Delete a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.client.Databases.Delete(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(list, get, create, del)
	return cmd
}

func tablesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Manage tables in the selected database",
		PersistentPreRunE: a.requireDatabaseHook,
	}

	var q queryFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.query()
			if err != nil {
				return err
			}
			res, err := a.client.Tables.List(cmd.Context(), query)
			if err != nil {
				return err
			}
			return printJSON(a.out, res)
		},
	}
	q.bind(list)

	var byName bool
	get := &cobra.Command{
		Use:   "get <uid|name>",
		Short: "Show one table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				t   *model.Table
				err error
			)
			if byName {
				t, err = a.client.Tables.ByName(cmd.Context(), args[0])
			} else {
				t, err = a.client.Tables.Get(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(a.out, t)
		},
	}
	get.Flags().BoolVar(&byName, "by-name", false, "look the table up by name")

	var data model.TableData
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.client.Tables.Create(cmd.Context(), data)
			if err != nil {
				return err
			}
			return printJSON(a.out, t)
		},
	}
	create.Flags().StringVar(&data.Name, "name", "", "table name")
	create.Flags().StringVar(&data.Description, "description", "", "description")
	_ = create.MarkFlagRequired("name")

	var changes string
	patch := &cobra.Command{
		Use:   "patch <uid>",
		Short: "Update table fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseData(changes)
			if err != nil {
				return err
			}
			t, err := a.client.Tables.Patch(cmd.Context(), args[0], fields)
			if err != nil {
				return err
			}
			return printJSON(a.out, t)
		},
	}
	patch.Flags().StringVar(&changes, "data", "", "fields to change as JSON")

	del := &cobra.Command{
		Use:   "delete <uid>",
		Short: "Delete a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.client.Tables.Delete(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(list, get, create, patch, del)
	return cmd
}
