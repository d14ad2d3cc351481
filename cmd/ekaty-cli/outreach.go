package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Dhoini/ekaty/internal/app"
	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	leadSource string
	campaignID string
	exportPath string
)

// outreachCmd работа с лидами и кампаниями рассылок
var outreachCmd = &cobra.Command{
	Use:   "outreach",
	Short: "Manage restaurant leads and outreach campaigns",
	Long: `Manage restaurant leads and outreach campaigns.

Available subcommands:
  leads - Import leads from a CSV file
  send  - Send an email campaign or prepare SMS drafts
  sms   - Prepare SMS drafts for a campaign and export them to CSV`,
}

var outreachLeadsCmd = &cobra.Command{
	Use:   "leads <file.csv>",
	Short: "Import leads from a CSV file with a header row",
	Args:  cobra.ExactArgs(1),
	RunE:  runOutreachLeads,
}

var outreachSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a campaign to its targeted leads",
	RunE:  runOutreachSend,
}

var outreachSMSCmd = &cobra.Command{
	Use:   "sms",
	Short: "Prepare SMS drafts for a campaign and export them to CSV",
	Long: `Prepare SMS drafts for every targeted lead with a phone number and write
the campaign messages as CSV. Drafts that already exist are exported as is.`,
	RunE: runOutreachSMS,
}

func init() {
	outreachLeadsCmd.Flags().StringVar(&leadSource, "source", "csv", "lead source label")
	for _, c := range []*cobra.Command{outreachSendCmd, outreachSMSCmd} {
		c.Flags().StringVar(&campaignID, "campaign", "", "campaign id")
		_ = c.MarkFlagRequired("campaign")
	}
	outreachSMSCmd.Flags().StringVarP(&exportPath, "output", "o", "", "output file (stdout by default)")
	outreachCmd.AddCommand(outreachLeadsCmd, outreachSendCmd, outreachSMSCmd)
}

func runOutreachLeads(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
		report, err := a.Services.Outreach.ImportLeads(ctx, f, leadSource)
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	})
}

func runOutreachSend(cmd *cobra.Command, _ []string) error {
	id, err := uuid.Parse(campaignID)
	if err != nil {
		return fmt.Errorf("invalid campaign id: %w", err)
	}
	return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
		report, err := a.Services.Outreach.Send(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	})
}

func runOutreachSMS(cmd *cobra.Command, _ []string) error {
	id, err := uuid.Parse(campaignID)
	if err != nil {
		return fmt.Errorf("invalid campaign id: %w", err)
	}
	return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
		campaign, err := a.Services.Outreach.GetCampaign(ctx, id)
		if err != nil {
			return err
		}
		if campaign.Channel != domain.ChannelSMS {
			return fmt.Errorf("campaign %s uses the %s channel", id, campaign.Channel)
		}
		if campaign.Status == domain.CampaignStatusDraft {
			report, err := a.Services.Outreach.Send(ctx, id)
			if err != nil {
				return err
			}
			a.Logger.Infow("SMS drafts prepared", "campaignID", id, "drafted", report.Drafted, "skipped", report.Skipped)
		}

		out := cmd.OutOrStdout()
		if exportPath != "" {
			f, err := os.Create(exportPath)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return a.Services.Outreach.ExportMessages(ctx, out, id)
	})
}
