package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"dugtong/internal/repository"
	"dugtong/internal/service"

	"github.com/spf13/cobra"
)

var (
	donorFilter  repository.DonorFilter
	regFilter    repository.RegistrationFilter
	reviewerID   string
	rejectReason string
	exportOut    string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cli.remote() {
			return errors.New("migrate needs the sql backend")
		}
		_, closeFn, err := repository.Open(cmd.Context(), repository.Options{
			Backend:  repository.BackendSQL,
			Database: &cli.cfg.Database,
			Migrate:  true,
		}, cli.log)
		if err != nil {
			return err
		}
		closeFn()
		fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	},
}

var donorsCmd = &cobra.Command{
	Use:   "donors",
	Short: "Browse and update donors",
}

var donorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List donors",
	RunE: func(cmd *cobra.Command, args []string) error {
		repos, err := cli.data(cmd.Context())
		if err != nil {
			return err
		}
		page, err := service.NewDonorService(repos.Donors, cli.log).List(cmd.Context(), donorFilter)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tTYPE\tMUNICIPALITY\tAVAILABILITY\tCONTACT")
		for _, d := range page.Items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				d.ID, d.FullName, d.BloodType, d.Municipality, d.Availability, d.ContactNumber)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d\n", len(page.Items), page.Total)
		return nil
	},
}

var donorsGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one donor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repos, err := cli.data(cmd.Context())
		if err != nil {
			return err
		}
		d, err := service.NewDonorService(repos.Donors, cli.log).Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), d)
	},
}

var donorsAvailabilityCmd = &cobra.Command{
	Use:   "availability ID STATUS",
	Short: `Set a donor's availability ("Available" or "Temporarily Unavailable")`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repos, err := cli.data(cmd.Context())
		if err != nil {
			return err
		}
		return service.NewDonorService(repos.Donors, cli.log).SetAvailability(cmd.Context(), args[0], args[1])
	},
}

var registrationsCmd = &cobra.Command{
	Use:     "registrations",
	Aliases: []string{"regs"},
	Short:   "Review donor registrations",
}

func registrationService(cmd *cobra.Command) (service.RegistrationService, error) {
	repos, err := cli.data(cmd.Context())
	if err != nil {
		return nil, err
	}
	notifications := service.NewNotificationService(repos.Notifications, repos.Preferences, cli.log)
	return service.NewRegistrationService(repos.Registrations, notifications, cli.log), nil
}

var registrationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := registrationService(cmd)
		if err != nil {
			return err
		}
		page, err := svc.List(cmd.Context(), regFilter)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tTYPE\tMUNICIPALITY\tSTATUS\tSUBMITTED")
		for _, r := range page.Items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.FullName, r.BloodType, r.Municipality, r.Status, r.CreatedAt.Format("2006-01-02"))
		}
		return tw.Flush()
	},
}

var registrationsApproveCmd = &cobra.Command{
	Use:   "approve ID",
	Short: "Approve a registration and create the donor's account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := registrationService(cmd)
		if err != nil {
			return err
		}
		res, err := svc.Approve(cmd.Context(), args[0], reviewerID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "approved; %s can sign in with %s / %s\n",
			res.User.FullName, res.User.ContactNumber, res.TemporaryPassword)
		return nil
	},
}

var registrationsRejectCmd = &cobra.Command{
	Use:   "reject ID",
	Short: "Reject a registration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := registrationService(cmd)
		if err != nil {
			return err
		}
		r, err := svc.Reject(cmd.Context(), args[0], reviewerID, rejectReason)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), r)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the donor list to an xlsx workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if cli.remote() {
			data, err = cli.api.Raw(cmd.Context(), http.MethodGet, "/reports/donors.xlsx")
		} else {
			var repos *repository.Set
			if repos, err = cli.data(cmd.Context()); err != nil {
				return err
			}
			data, err = service.NewReportService(repos.Donors, cli.log).ExportDonors(cmd.Context(), donorFilter)
		}
		if err != nil {
			return err
		}
		if err := os.WriteFile(exportOut, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", exportOut, len(data))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{donorsListCmd, exportCmd} {
		c.Flags().StringVar(&donorFilter.BloodType, "blood-type", "", "filter by blood type")
		c.Flags().StringVar(&donorFilter.Municipality, "municipality", "", "filter by municipality")
		c.Flags().StringVar(&donorFilter.Availability, "availability", "", "filter by availability")
		c.Flags().StringVar(&donorFilter.Search, "search", "", "match name, contact or municipality")
	}
	donorsListCmd.Flags().IntVar(&donorFilter.Page, "page", 0, "page number, 0-based")
	donorsListCmd.Flags().IntVar(&donorFilter.PageSize, "page-size", 20, "rows per page")
	donorsCmd.AddCommand(donorsListCmd, donorsGetCmd, donorsAvailabilityCmd)

	registrationsListCmd.Flags().StringVar(&regFilter.Status, "status", "pending", "pending, approved or rejected")
	registrationsListCmd.Flags().StringVar(&regFilter.Search, "search", "", "match name or contact")
	registrationsListCmd.Flags().IntVar(&regFilter.Page, "page", 0, "page number, 0-based")
	registrationsListCmd.Flags().IntVar(&regFilter.PageSize, "page-size", 20, "rows per page")
	for _, c := range []*cobra.Command{registrationsApproveCmd, registrationsRejectCmd} {
		c.Flags().StringVar(&reviewerID, "reviewer", "cli", "reviewer user id (sql backend; the API uses the signed-in user)")
	}
	registrationsRejectCmd.Flags().StringVar(&rejectReason, "reason", "", "why the registration was rejected")
	_ = registrationsRejectCmd.MarkFlagRequired("reason")
	registrationsCmd.AddCommand(registrationsListCmd, registrationsApproveCmd, registrationsRejectCmd)

	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "donors.xlsx", "output file")
}
