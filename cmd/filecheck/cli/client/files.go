package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mwantia/filecheck/internal/agent"
	"github.com/mwantia/filecheck/internal/analysis"
	config "github.com/mwantia/filecheck/internal/config/server"
	"github.com/mwantia/filecheck/pkg/db/models"
	"github.com/mwantia/filecheck/pkg/db/store"
)

func NewFilesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage ingested files",
		Long:  "Upload files into the pipeline and inspect their metadata and analysis results.",
	}

	cmd.AddCommand(NewFilesUploadCommand())
	cmd.AddCommand(NewFilesListCommand())
	cmd.AddCommand(NewFilesShowCommand())
	cmd.AddCommand(NewFilesDownloadCommand())
	cmd.AddCommand(NewFilesAnnounceCommand())
	cmd.AddCommand(NewFilesResultCommand())
	cmd.AddCommand(NewFilesDuplicatesCommand())

	return cmd
}

// withAgent sets up an agent from the loaded configuration, runs fn and
// cleans the agent up again.
func withAgent(ctx context.Context, fn func(a *agent.FileCheckAgent, cfg *config.BaseServerConfig) error) error {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load server configuration: %w", err)
	}

	a := agent.NewAgent(cfg)
	if err := a.Setup(ctx); err != nil {
		a.Cleanup(context.Background())
		return err
	}

	runErr := fn(a, cfg)

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(runErr, a.Cleanup(shutdown))
}

func NewFilesUploadCommand() *cobra.Command {
	var (
		name        string
		contentType string
		userID      string
		wait        bool
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a file",
		Long: `Upload a file into the pipeline.

With --wait, or whenever the in-memory bus is configured, the analysis
consumers run inside this process and the command waits for the result.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			if name == "" {
				name = filepath.Base(args[0])
			}

			return withAgent(cmd.Context(), func(a *agent.FileCheckAgent, cfg *config.BaseServerConfig) error {
				return publishAndWait(cmd, a, wait || cfg.Bus.Type == "memory", timeout, func(ctx context.Context) (*models.File, error) {
					file, err := a.Ingest.Ingest(ctx, data, name, contentType, userID)
					if err != nil {
						return nil, err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s as %s\n", file.OriginalName, file.FileID)
					return file, nil
				})
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "stored file name (defaults to the base name of path)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type (detected when empty)")
	cmd.Flags().StringVar(&userID, "user", "", "owning user")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "run the analysis in-process and wait for the result")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "how long to wait for the analysis result")

	return cmd
}

// publishAndWait calls publish and, when inProcess is set, runs the analysis
// consumers until the published file has a result, which is printed.
func publishAndWait(cmd *cobra.Command, a *agent.FileCheckAgent, inProcess bool, timeout time.Duration, publish func(ctx context.Context) (*models.File, error)) error {
	if !inProcess {
		_, err := publish(cmd.Context())
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	runDone := make(chan error, 1)
	go func() { runDone <- a.Run(ctx) }()
	defer func() {
		cancel()
		<-runDone
	}()

	file, err := publish(ctx)
	if err != nil {
		return err
	}

	result, err := waitForResult(ctx, a.Results, file.FileID, timeout)
	if err != nil {
		return err
	}
	return printYAML(cmd.OutOrStdout(), result)
}

func waitForResult(ctx context.Context, results *analysis.Results, fileID string, timeout time.Duration) (*analysis.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		result, err := results.Get(ctx, fileID)
		if err == nil && result.Checked {
			return result, nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("no analysis result for %s after %s", fileID, timeout)
		case <-ticker.C:
		}
	}
}

func NewFilesListCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List ingested files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), func(a *agent.FileCheckAgent, _ *config.BaseServerConfig) error {
				files, err := a.Ingest.List(cmd.Context(), limit, offset)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "FILE ID\tNAME\tSIZE\tUSER\tCREATED")
				for _, f := range files {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
						f.FileID, f.OriginalName, f.Size, f.Owner(), f.CreatedAt.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of files to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of files to skip")

	return cmd
}

type fileView struct {
	FileID      string `yaml:"file_id"`
	Name        string `yaml:"name"`
	ContentType string `yaml:"content_type"`
	Size        int64  `yaml:"size"`
	Location    string `yaml:"location"`
	User        string `yaml:"user,omitempty"`
	CreatedAt   string `yaml:"created_at"`
}

func newFileView(f *models.File) fileView {
	return fileView{
		FileID:      f.FileID,
		Name:        f.OriginalName,
		ContentType: f.ContentType,
		Size:        f.Size,
		Location:    f.StorageLocation,
		User:        f.Owner(),
		CreatedAt:   f.CreatedAt.Format(time.RFC3339),
	}
}

func NewFilesShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <file-id>",
		Short: "Show the metadata of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), func(a *agent.FileCheckAgent, _ *config.BaseServerConfig) error {
				file, err := a.Ingest.Metadata(cmd.Context(), args[0])
				if err != nil {
					return notFound(args[0], err)
				}
				return printYAML(cmd.OutOrStdout(), newFileView(file))
			})
		},
	}
}

func NewFilesDownloadCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <file-id>",
		Short: "Download the contents of a file",
		Long:  "Download the contents of a file to --output, or to stdout when no output is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), func(a *agent.FileCheckAgent, _ *config.BaseServerConfig) error {
				_, data, err := a.Ingest.Download(cmd.Context(), args[0])
				if err != nil {
					return notFound(args[0], err)
				}

				if output == "" {
					_, err := cmd.OutOrStdout().Write(data)
					return err
				}
				return os.WriteFile(output, data, 0644)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write the contents to")

	return cmd
}

func NewFilesAnnounceCommand() *cobra.Command {
	var (
		wait    bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "announce <file-id>",
		Short: "Publish the upload event of a stored file again",
		Long: `Publish the upload event of a stored file again.

Use this for files whose upload was stored but never announced, for
example because the bus was unavailable. Files that were already
analysed are skipped by the agent. As with upload, the analysis runs
in-process with --wait or the in-memory bus.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), func(a *agent.FileCheckAgent, cfg *config.BaseServerConfig) error {
				return publishAndWait(cmd, a, wait || cfg.Bus.Type == "memory", timeout, func(ctx context.Context) (*models.File, error) {
					file, err := a.Ingest.Announce(ctx, args[0])
					if err != nil {
						return nil, notFound(args[0], err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Announced %s (%s)\n", file.FileID, file.OriginalName)
					return file, nil
				})
			})
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "run the analysis in-process and wait for the result")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "how long to wait for the analysis result")

	return cmd
}

func NewFilesResultCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "result <file-id>",
		Short: "Show the analysis result of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), func(a *agent.FileCheckAgent, _ *config.BaseServerConfig) error {
				result, err := a.Results.Get(cmd.Context(), args[0])
				if err != nil {
					return notFound(args[0], err)
				}
				return printYAML(cmd.OutOrStdout(), result)
			})
		},
	}
}

func NewFilesDuplicatesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "duplicates <file-id>",
		Short: "List files with the same content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), func(a *agent.FileCheckAgent, _ *config.BaseServerConfig) error {
				others, err := a.Results.Duplicates(cmd.Context(), args[0])
				if err != nil {
					return notFound(args[0], err)
				}

				for _, id := range others {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
}

func notFound(fileID string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("file %s not found or not analysed yet", fileID)
	}
	return err
}

func printYAML(w io.Writer, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
