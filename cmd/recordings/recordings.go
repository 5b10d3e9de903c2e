// Package recordings holds the commands that operate on stored recordings.
package recordings

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/radiorec/radiorec/cmd/output"
	"github.com/radiorec/radiorec/internal/app"
	"github.com/radiorec/radiorec/internal/errors"
)

// Command groups list, get, delete and download.
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recordings",
		Aliases: []string{"rec"},
		Short:   "Browse and manage stored recordings",
	}
	cmd.AddCommand(
		listCommand(ctx),
		getCommand(ctx),
		deleteCommand(ctx),
		downloadCommand(ctx),
	)
	return cmd
}

// withApp builds the application for one command run.
func withApp(ctx *app.Context, fn func(a *app.App) error) error {
	a, err := app.New(ctx.Settings, ctx.Build)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Newf("invalid recording id %q", s).
			Component("cli").
			Category(errors.CategoryValidation).
			Build()
	}
	return id, nil
}

func parseSeconds(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Newf("invalid %s %q, expected seconds", name, s).
			Component("cli").
			Category(errors.CategoryValidation).
			Build()
	}
	return v, nil
}

func listCommand(ctx *app.Context) *cobra.Command {
	var (
		page   int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recordings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, func(a *app.App) error {
				p, err := a.Backend.ListRecordings(cmd.Context(), page)
				if err != nil {
					return err
				}
				return output.NewFormatter(cmd.OutOrStdout(), asJSON).Recordings(p)
			})
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page number")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func getCommand(ctx *app.Context) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(ctx, func(a *app.App) error {
				r, err := a.Backend.GetRecording(cmd.Context(), id)
				if err != nil {
					return err
				}
				return output.NewFormatter(cmd.OutOrStdout(), asJSON).Recording(r)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func deleteCommand(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a recording and its file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(ctx, func(a *app.App) error {
				if err := a.Backend.DeleteRecording(cmd.Context(), id); err != nil {
					return err
				}
				output.NewFormatter(cmd.OutOrStdout(), false).Success(fmt.Sprintf("Deleted recording %d", id))
				return nil
			})
		},
	}
}

func downloadCommand(ctx *app.Context) *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download a recording's file",
		Long:  "Download a recording's file. Without --output the server's file name is used in the current directory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(ctx, func(a *app.App) error {
				path, n, err := download(cmd, a, id, dest)
				if err != nil {
					return err
				}
				output.NewFormatter(cmd.OutOrStdout(), false).Success(fmt.Sprintf("Saved %s (%d bytes)", path, n))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&dest, "output", "o", "", "Destination file")
	return cmd
}

// download writes to a temporary file and renames it once the name is known.
func download(cmd *cobra.Command, a *app.App, id int64, dest string) (string, int64, error) {
	dir := "."
	if dest != "" {
		dir = filepath.Dir(dest)
	}
	tmp, err := os.CreateTemp(dir, ".radiorec-download-*")
	if err != nil {
		return "", 0, errors.New(err).Component("cli").Category(errors.CategoryFileIO).Build()
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	name, n, err := a.Backend.Download(cmd.Context(), id, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return "", n, err
	}

	if dest == "" {
		dest = filepath.Base(name)
		if name == "" || dest == "." || dest == string(filepath.Separator) {
			dest = fmt.Sprintf("recording-%d", id)
		}
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", n, errors.New(err).Component("cli").Category(errors.CategoryFileIO).FileContext(dest, n).Build()
	}
	return dest, n, nil
}
