package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"dugtong/common/mqtt"
	commonredis "dugtong/common/redis"
	"dugtong/internal/domain"
	"dugtong/internal/repository"
	"dugtong/internal/service"

	"github.com/spf13/cobra"
)

var (
	alertFilter repository.AlertFilter
	watchVia    string
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Blood requests",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		repos, err := cli.data(cmd.Context())
		if err != nil {
			return err
		}
		svc := service.NewAlertService(repos.Alerts, repos.Donors, nil, nil, cli.log)
		page, err := svc.ListActive(cmd.Context(), alertFilter)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tURGENCY\tTITLE\tTYPE\tMUNICIPALITY")
		for _, a := range page.Items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Urgency, a.Title, orAny(a.BloodType), orAnyStr(a.Municipality))
		}
		return tw.Flush()
	},
}

var alertsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print alerts as they are broadcast (redis stream or mqtt topic)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var source service.AlertSource
		switch watchVia {
		case "redis":
			rc := commonredis.NewRedisClient(&cli.cfg.Redis)
			defer commonredis.Close(rc)
			host, _ := os.Hostname()
			reader := commonredis.NewStreamReader(rc, "dugtong-cli", "cli-"+host, 10)
			source = service.NewStreamAlertSource(reader, service.AlertStream, cli.log)
		case "mqtt":
			mcfg := cli.cfg.MQTT
			mcfg.ClientID += "-watch"
			mc, err := mqtt.NewClient(&mcfg, cli.log, nil)
			if err != nil {
				return err
			}
			defer mc.Disconnect()
			source = service.NewMQTTAlertSource(mc, service.AlertTopic)
		default:
			return fmt.Errorf("--via must be redis or mqtt, got %q", watchVia)
		}

		out := cmd.OutOrStdout()
		return source.Watch(ctx, func(a *domain.Alert) {
			fmt.Fprintf(out, "[%s] %s: %s (%s, %s)\n", a.Urgency, a.Title, a.Message, orAny(a.BloodType), orAnyStr(a.Municipality))
		})
	},
}

func orAny(bt *domain.BloodType) string {
	if bt == nil {
		return "any"
	}
	return string(*bt)
}

func orAnyStr(s *string) string {
	if s == nil || *s == "" {
		return "any"
	}
	return *s
}

func init() {
	alertsListCmd.Flags().StringVar(&alertFilter.BloodType, "blood-type", "", "alerts for this blood type (or untargeted)")
	alertsListCmd.Flags().StringVar(&alertFilter.Municipality, "municipality", "", "alerts for this town (or untargeted)")
	alertsListCmd.Flags().StringVar(&alertFilter.Urgency, "urgency", "", "low, medium, high or critical")
	alertsWatchCmd.Flags().StringVar(&watchVia, "via", "redis", "redis or mqtt")
	alertsCmd.AddCommand(alertsListCmd, alertsWatchCmd)
	rootCmd.AddCommand(alertsCmd)
}
