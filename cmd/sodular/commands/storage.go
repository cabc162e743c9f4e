package commands

import (
	"github.com/spf13/cobra"

	"github.com/sodular/sodular-go/internal/model"
)

func storageCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "storage",
		Short:             "Manage storages in the selected database",
		PersistentPreRunE: a.requireDatabaseHook,
	}

	var q queryFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List storages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.query()
			if err != nil {
				return err
			}
			res, err := a.client.Storages.List(cmd.Context(), query)
			if err != nil {
				return err
			}
			return printJSON(a.out, res)
		},
	}
	q.bind(list)

	var data model.StorageData
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.client.Storages.Create(cmd.Context(), data)
			if err != nil {
				return err
			}
			return printJSON(a.out, st)
		},
	}
	create.Flags().StringVar(&data.Name, "name", "", "storage name")
	create.Flags().StringVar(&data.Description, "description", "", "description")
	_ = create.MarkFlagRequired("name")

	del := &cobra.Command{
		Use:   "delete <uid>",
		Short: "Delete a storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.client.Storages.Delete(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(list, create, del)
	return cmd
}

func bucketsCmd(a *app) *cobra.Command {
	var storage string
	cmd := &cobra.Command{
		Use:               "buckets",
		Short:             "Manage buckets in a storage",
		PersistentPreRunE: a.requireDatabaseHook,
	}
	cmd.PersistentFlags().StringVar(&storage, "storage", "", "storage uid")
	_ = cmd.MarkPersistentFlagRequired("storage")

	var q queryFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List buckets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.query()
			if err != nil {
				return err
			}
			res, err := a.client.Buckets.List(cmd.Context(), storage, query)
			if err != nil {
				return err
			}
			return printJSON(a.out, res)
		},
	}
	q.bind(list)

	var data model.BucketData
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.client.Buckets.Create(cmd.Context(), storage, data)
			if err != nil {
				return err
			}
			return printJSON(a.out, b)
		},
	}
	create.Flags().StringVar(&data.Name, "name", "", "bucket name")
	create.Flags().StringVar(&data.Description, "description", "", "description")
	_ = create.MarkFlagRequired("name")

	del := &cobra.Command{
		Use:   "delete <uid>",
		Short: "Delete a bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.client.Buckets.Delete(cmd.Context(), storage, args[0])
		},
	}

	cmd.AddCommand(list, create, del)
	return cmd
}
