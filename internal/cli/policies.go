package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwizi/roster-assist/internal/apiclient"
	"github.com/dwizi/roster-assist/internal/config"
)

func newPoliciesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Manage policy documents on the running server",
	}
	cmd.AddCommand(newPoliciesListCommand())
	cmd.AddCommand(newPoliciesAddCommand())
	cmd.AddCommand(newPoliciesDeleteCommand())
	cmd.AddCommand(newPoliciesReindexCommand())
	return cmd
}

func newPoliciesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexed policy documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			documents, err := apiclient.New(config.FromEnv()).ListPolicies(contextOf(cmd))
			if err != nil {
				return err
			}
			if len(documents) == 0 {
				cmd.Println("no policy documents")
				return nil
			}
			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "ID\tTITLE\tCHUNKS\tUPDATED")
			for _, document := range documents {
				updated := time.Unix(document.UpdatedAtUnix, 0).UTC().Format(time.RFC3339)
				fmt.Fprintf(writer, "%s\t%s\t%d\t%s\n", document.ID, document.Title, document.Chunks, updated)
			}
			return writer.Flush()
		},
	}
}

func newPoliciesAddCommand() *cobra.Command {
	var (
		title    string
		uploader string
	)
	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Upload a policy document and index it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read policy file: %w", err)
			}
			if strings.TrimSpace(title) == "" {
				title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}
			document, err := apiclient.New(config.FromEnv()).IngestPolicy(contextOf(cmd), apiclient.IngestPolicyRequest{
				Title:      title,
				SourcePath: filepath.Base(path),
				Content:    string(content),
				UploaderID: uploader,
			})
			if err != nil {
				return err
			}
			cmd.Printf("indexed %q as %s (%d chunks)\n", document.Title, document.ID, document.Chunks)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "document title (defaults to the file name)")
	cmd.Flags().StringVar(&uploader, "uploader", "cli", "uploader id recorded with the document")
	return cmd
}

func newPoliciesDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a policy document and its passages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiclient.New(config.FromEnv()).DeletePolicy(contextOf(cmd), args[0]); err != nil {
				return err
			}
			cmd.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}

func newPoliciesReindexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Ask the running server to rebuild its policy index",
		RunE: func(cmd *cobra.Command, args []string) error {
			response, err := apiclient.New(config.FromEnv()).Reindex(contextOf(cmd))
			if err != nil {
				return err
			}
			if response.JobID != "" {
				cmd.Printf("reindex %s (job %s)\n", response.Status, response.JobID)
				return nil
			}
			cmd.Printf("reindex %s (%d chunks)\n", response.Status, response.Chunks)
			return nil
		},
	}
}

func newHistoryCommand() *cobra.Command {
	var (
		requesterID string
		limit       int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past interactions of a requester",
		RunE: func(cmd *cobra.Command, args []string) error {
			interactions, err := apiclient.New(config.FromEnv()).History(contextOf(cmd), requesterID, limit)
			if err != nil {
				return err
			}
			styles := newTheme()
			for _, interaction := range interactions {
				stamp := time.Unix(interaction.CreatedAtUnix, 0).UTC().Format(time.RFC3339)
				cmd.Println(styles.subtle.Render(stamp) + " " + styles.title.Render(interaction.Query))
				cmd.Println(styles.answer.Render(interaction.Answer))
				cmd.Println()
			}
			if len(interactions) == 0 {
				cmd.Println("no interactions")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&requesterID, "requester", "cli", "requester id to list")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum interactions to show")
	return cmd
}
