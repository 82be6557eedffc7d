package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"sheetrelay/adapters/excel"
	"sheetrelay/adapters/graph"
	"sheetrelay/domain/workbook"
	"sheetrelay/internal"
	"sheetrelay/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "sheetrelay-cli",
		Short: "Operator tools for the OneDrive workbook relay",
	}

	rootCmd.AddCommand(
		newUploadCmd(),
		newFetchCmd(),
		newReportCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newGraphClient builds a client from the AZURE_* / ONEDRIVE_* variables
func newGraphClient() (*graph.Client, *config.GraphConfig, error) {
	cfg, err := config.LoadGraph()
	if err != nil {
		return nil, nil, err
	}
	tokens := graph.NewCredentialProvider(graph.CredentialOptions{
		AuthorityURL: cfg.AuthorityURL,
		TenantID:     cfg.TenantID,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scope:        cfg.Scope,
		Timeout:      cfg.ControlTimeout,
	})
	client := graph.NewClient(tokens, graph.Options{
		BaseURL:         cfg.BaseURL,
		UserEmail:       cfg.UserEmail,
		ControlTimeout:  cfg.ControlTimeout,
		TransferTimeout: cfg.TransferTimeout,
		Logger:          internal.NewDefaultLogger(),
	})
	return client, cfg, nil
}

func newUploadCmd() *cobra.Command {
	var localPath, folder, name string
	var chunkMB, retries int

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Push a local file through a resumable upload session",
		Long: `Upload a local file to <root>/<folder>/<name> in chunks, creating the folder
when needed. Prints the web URL of the uploaded item.

Example: sheetrelay-cli upload --local ./big.xlsx --folder __TEST__ --name test.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd.Context(), localPath, folder, name, chunkMB, retries)
		},
	}

	cmd.Flags().StringVar(&localPath, "local", "", "Local file path")
	cmd.Flags().StringVar(&folder, "folder", "__TEST__", "Remote folder under the root folder")
	cmd.Flags().StringVar(&name, "name", "test.xlsx", "Remote filename")
	cmd.Flags().IntVar(&chunkMB, "chunk-mb", 10, "Chunk size in MiB")
	cmd.Flags().IntVar(&retries, "retries", 3, "Upload attempts, each with a fresh session")
	_ = cmd.MarkFlagRequired("local")

	return cmd
}

func runUpload(ctx context.Context, localPath, folder, name string, chunkMB, retries int) error {
	client, cfg, err := newGraphClient()
	if err != nil {
		return err
	}
	remoteFolder := workbook.FolderPath(cfg.RootFolder, folder)
	if err := client.EnsureFolderPath(ctx, remoteFolder); err != nil {
		return fmt.Errorf("failed to prepare %s: %w", remoteFolder, err)
	}

	item, err := client.UploadLargeFile(ctx, localPath, remoteFolder, name, int64(chunkMB)*1024*1024, retries)
	if err != nil {
		return err
	}
	fmt.Println("✅ Upload completed")
	fmt.Println(item.WebURL)
	return nil
}

func newFetchCmd() *cobra.Command {
	var folder, name, out string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download a remote workbook",
		Long: `Download <root>/<folder>/<name> to a local path.

Example: sheetrelay-cli fetch --folder "Alpha High" --name "Alpha High.xlsx" --out ./alpha.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := newGraphClient()
			if err != nil {
				return err
			}
			if out == "" {
				out = name
			}
			remoteFolder := workbook.FolderPath(cfg.RootFolder, folder)
			found, err := client.DownloadFile(cmd.Context(), remoteFolder, name, out)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%s/%s does not exist", remoteFolder, name)
			}
			fmt.Printf("Saved %s/%s to %s\n", remoteFolder, name, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "", "Remote folder under the root folder")
	cmd.Flags().StringVar(&name, "name", "", "Remote filename")
	cmd.Flags().StringVar(&out, "out", "", "Local destination (default: the remote filename)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newReportCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize auto-correct scores per sheet of a local workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries, err := excel.SummarizeScores(file)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SHEET\tROWS\tSCORED\tMEAN\tMEDIAN\tMIN\tMAX\tSTDDEV")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\t%.2f\t%.0f\t%.0f\t%.2f\n",
					s.Sheet, s.Rows, s.Scored, s.Mean, s.Median, s.Min, s.Max, s.StdDev)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Local workbook path")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
