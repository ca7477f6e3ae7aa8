package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/rowstore/internal/client"
	"github.com/alfredjeanlab/rowstore/internal/export"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Export the rows matching the filters as TSV or Excel",
	GroupID: "data",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatName, _ := cmd.Flags().GetString("format")
		if formatName != string(client.FormatTSV) && formatName != string(client.FormatExcel) {
			return fmt.Errorf("unknown format %q (must be tsv or excel)", formatName)
		}
		format := client.ParseExportFormat(formatName)
		outDir, _ := cmd.Flags().GetString("out")
		name, _ := cmd.Flags().GetString("name")
		toS3, _ := cmd.Flags().GetBool("s3")
		gitRepo, _ := cmd.Flags().GetString("git-repo")
		gitDir, _ := cmd.Flags().GetString("git-dir")
		gitBranch, _ := cmd.Flags().GetString("git-branch")
		every, _ := cmd.Flags().GetDuration("every")

		cfg, err := queryConfig(cmd)
		if err != nil {
			return err
		}
		s, err := newStore(cfg)
		if err != nil {
			return err
		}

		var dests []export.Destination
		if outDir != "" {
			dests = append(dests, export.NewFileDestination(outDir))
		}
		if toS3 {
			d, err := export.NewS3Destination(cmd.Context(), envConfig.ExportS3Bucket, envConfig.ExportS3Prefix, envConfig.ExportS3Region, envConfig.ExportS3Endpoint)
			if err != nil {
				return err
			}
			dests = append(dests, d)
		}
		if gitRepo != "" {
			dests = append(dests, export.NewGitDestination(gitRepo, gitDir, gitBranch))
		}

		if len(dests) == 0 {
			if every > 0 {
				return fmt.Errorf("--every needs a destination (--out, --s3 or --git-repo)")
			}
			_, err := s.ExportData(cmd.Context(), format, cmd.OutOrStdout())
			return err
		}

		if every > 0 {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			sched := export.NewScheduler(s, format, dests, every, name, logger)
			sched.Start(ctx)
			<-ctx.Done()
			sched.Stop()
			return nil
		}

		if name == "" {
			name = export.FileName(s.Source(), format, time.Now())
		}
		n, err := export.Run(cmd.Context(), s, format, name, dests...)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "exported %s (%d bytes) to %d destinations\n", name, n, len(dests))
		return nil
	},
}

func init() {
	addQueryFlags(exportCmd)
	exportCmd.Flags().String("format", string(client.FormatTSV), "export format: tsv or excel")
	exportCmd.Flags().String("out", "", "directory to write the export to (default stdout)")
	exportCmd.Flags().String("name", "", "export file name (default schema.query-<timestamp>.<ext>)")
	exportCmd.Flags().Bool("s3", false, "upload to $ROWSTORE_EXPORT_S3_BUCKET")
	exportCmd.Flags().String("git-repo", "", "commit the export to this local git clone and push")
	exportCmd.Flags().String("git-dir", "", "directory within the git repo")
	exportCmd.Flags().String("git-branch", "main", "branch to commit to")
	exportCmd.Flags().Duration("every", 0, "repeat the export at this interval until interrupted")
}
