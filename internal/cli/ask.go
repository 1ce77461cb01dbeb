package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/dwizi/roster-assist/internal/apiclient"
	"github.com/dwizi/roster-assist/internal/config"
)

type theme struct {
	title   lipgloss.Style
	answer  lipgloss.Style
	subtle  lipgloss.Style
	applied lipgloss.Style
	skipped lipgloss.Style
	failed  lipgloss.Style
	box     lipgloss.Style
}

func newTheme() theme {
	border := lipgloss.Color("238")
	muted := lipgloss.Color("246")
	accent := lipgloss.Color("111")
	success := lipgloss.Color("78")
	warn := lipgloss.Color("214")
	danger := lipgloss.Color("203")

	return theme{
		title:   lipgloss.NewStyle().Bold(true).Foreground(accent),
		answer:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		subtle:  lipgloss.NewStyle().Foreground(muted),
		applied: lipgloss.NewStyle().Bold(true).Foreground(success),
		skipped: lipgloss.NewStyle().Bold(true).Foreground(warn),
		failed:  lipgloss.NewStyle().Bold(true).Foreground(danger),
		box: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(border).
			Padding(0, 1),
	}
}

func newAskCommand() *cobra.Command {
	var (
		model       string
		requesterID string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the running assistant a calendar question",
		Long:  "Sends one question when given as arguments, otherwise opens an interactive session. Type /exit to quit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := apiclient.New(config.FromEnv())
			styles := newTheme()

			text := strings.TrimSpace(strings.Join(args, " "))
			if text != "" {
				response, err := client.Query(contextOf(cmd), apiclient.QueryRequest{
					Query:       text,
					Model:       model,
					RequesterID: requesterID,
				})
				if response.Answer != "" || len(response.Outcomes) > 0 {
					cmd.Println(renderResponse(styles, response))
				}
				return err
			}
			return runInteractiveAsk(cmd, client, styles, model, requesterID)
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model override for this session")
	cmd.Flags().StringVar(&requesterID, "requester", "cli", "requester id recorded with each interaction")
	return cmd
}

func runInteractiveAsk(cmd *cobra.Command, client *apiclient.Client, styles theme, model, requesterID string) error {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		cmd.Print(styles.title.Render("you> "))
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/exit" || text == "/quit" {
			return nil
		}

		ctx, cancel := context.WithTimeout(contextOf(cmd), 5*time.Minute)
		response, err := client.Query(ctx, apiclient.QueryRequest{
			Query:       text,
			Model:       model,
			RequesterID: requesterID,
		})
		cancel()
		if response.Answer != "" || len(response.Outcomes) > 0 {
			cmd.Println(renderResponse(styles, response))
		}
		if err != nil {
			cmd.PrintErrln(styles.failed.Render("query failed: " + err.Error()))
		}
	}
	return scanner.Err()
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// renderResponse formats an answer followed by one line per schedule update
// outcome.
func renderResponse(styles theme, response apiclient.QueryResponse) string {
	blocks := []string{styles.answer.Render(strings.TrimSpace(response.Answer))}

	if len(response.Outcomes) > 0 {
		lines := []string{styles.title.Render(fmt.Sprintf("Schedule updates (%d applied, %d skipped)", response.Applied, response.Skipped))}
		for _, outcome := range response.Outcomes {
			label := styles.applied.Render(outcome.Action)
			if outcome.Action == "skipped" {
				label = styles.skipped.Render(outcome.Action)
			}
			line := fmt.Sprintf("%s %s %s %s", label, outcome.Employee, outcome.Date, outcome.ShiftType)
			if outcome.Reason != "" {
				line += " " + styles.subtle.Render("("+outcome.Reason+")")
			}
			lines = append(lines, line)
		}
		blocks = append(blocks, styles.box.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
	}
	if response.Model != "" {
		blocks = append(blocks, styles.subtle.Render("model: "+response.Model))
	}
	return lipgloss.JoinVertical(lipgloss.Left, blocks...)
}
