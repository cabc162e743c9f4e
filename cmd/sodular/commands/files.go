package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sodular/sodular-go/internal/client"
	"github.com/sodular/sodular-go/internal/model"
)

// maxParallelUploads bounds concurrent uploads in `files upload`.
const maxParallelUploads = 4

func filesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "files",
		Short:             "Upload, download and manage files",
		PersistentPreRunE: a.requireDatabaseHook,
	}

	var (
		bucket string
		q      queryFlags
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List files in a bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.query()
			if err != nil {
				return err
			}
			res, err := a.client.Files.List(cmd.Context(), bucket, query)
			if err != nil {
				return err
			}
			return printJSON(a.out, res)
		},
	}
	list.Flags().StringVar(&bucket, "bucket", "", "bucket uid")
	_ = list.MarkFlagRequired("bucket")
	q.bind(list)

	cmd.AddCommand(list, uploadCmd(a), downloadCmd(a), deleteFileCmd(a))
	return cmd
}

func uploadCmd(a *app) *cobra.Command {
	var bucket, storage string
	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload files in parallel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]*model.File, len(args))

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(maxParallelUploads)
			for i, path := range args {
				i, path := i, path
				g.Go(func() error {
					f, err := uploadFile(ctx, a.client, bucket, storage, path)
					if err != nil {
						return fmt.Errorf("upload %s: %w", path, err)
					}
					results[i] = f
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			return printJSON(a.out, results)
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket uid")
	cmd.Flags().StringVar(&storage, "storage", "", "storage uid")
	_ = cmd.MarkFlagRequired("bucket")
	return cmd
}

// uploadFile streams one file. *os.File is seekable, so an upload that hits
// an expired token is replayed after the refresh.
func uploadFile(ctx context.Context, c *client.Client, bucket, storage, path string) (*model.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	return c.Files.Upload(ctx, client.UploadInput{
		BucketID:  bucket,
		StorageID: storage,
		Filename:  filepath.Base(path),
		Content:   f,
		Size:      info.Size(),
	})
}

func downloadCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download <uid>",
		Short: "Download a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" || output == "-" {
				_, err := a.client.Files.Download(cmd.Context(), args[0], a.out, nil)
				return err
			}

			tmp, err := os.CreateTemp(filepath.Dir(output), ".download-*")
			if err != nil {
				return err
			}
			defer os.Remove(tmp.Name())

			n, err := a.client.Files.Download(cmd.Context(), args[0], tmp, nil)
			if cerr := tmp.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			if err := os.Rename(tmp.Name(), output); err != nil {
				return err
			}
			return printJSON(a.out, map[string]any{"uid": args[0], "path": output, "bytes": n})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination path (default stdout)")
	return cmd
}

func deleteFileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <uid>",
		Short: "Delete a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.client.Files.Delete(cmd.Context(), args[0])
		},
	}
}
