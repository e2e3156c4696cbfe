package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dealdesk/dealdesk/internal/domain/alert"
	"github.com/dealdesk/dealdesk/internal/domain/operator"
)

const cliActor = "system:cli"

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "dealctl",
		Short:         "Deal desk administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(open), newOperatorCmd(open), newAlertsCmd(open))
	return root
}

func newMigrateCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			applied, err := open.migrate(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "database is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintln(out, "applied", name)
			}
			return nil
		},
	}
}

func newOperatorCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Manage operators",
	}

	var (
		username string
		role     string
		groups   []string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an operator",
		Long:  "Create an operator. The password is read from DEALCTL_PASSWORD or the first line of stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			svc, closeFn, err := open.services(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			o, err := svc.auth.CreateOperator(cmd.Context(), username, password, operator.Role(strings.ToUpper(role)), groups, cliActor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s operator %s (%s)\n", o.Role, o.Username, o.OperatorID)
			return nil
		},
	}
	create.Flags().StringVar(&username, "username", "", "login name")
	create.Flags().StringVar(&role, "role", string(operator.RoleAdmin), "ADMIN, OPERATOR or VIEWER")
	create.Flags().StringSliceVar(&groups, "groups", nil, "alert groups, e.g. finance")
	_ = create.MarkFlagRequired("username")

	cmd.AddCommand(create)
	return cmd
}

func newAlertsCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect and acknowledge operator alerts",
	}

	var (
		status string
		limit  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List alerts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := open.services(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			var filter alert.Filter
			if status != "" && !strings.EqualFold(status, "all") {
				st := alert.Status(strings.ToUpper(status))
				filter.Status = &st
			}
			alerts, err := svc.alerts.List(cmd.Context(), filter, limit, 0)
			if err != nil {
				return err
			}
			return printAlerts(cmd.OutOrStdout(), alerts)
		},
	}
	list.Flags().StringVar(&status, "status", string(alert.StatusOpen), "OPEN, ACKNOWLEDGED or all")
	list.Flags().IntVar(&limit, "limit", 50, "maximum alerts to show")

	var actor string
	ack := &cobra.Command{
		Use:   "ack <alert-id>",
		Short: "Acknowledge an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid alert id: %w", err)
			}
			svc, closeFn, err := open.services(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			a, err := svc.alerts.Acknowledge(cmd.Context(), id, actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "acknowledged %s (%s)\n", a.AlertID, a.Kind)
			return nil
		},
	}
	ack.Flags().StringVar(&actor, "actor", cliActor, "who acknowledges, recorded in the audit log")

	cmd.AddCommand(list, ack)
	return cmd
}

func printAlerts(w io.Writer, alerts []*alert.Alert) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSEVERITY\tSTATUS\tGROUP\tSEEN\tLAST SEEN\tTITLE")
	for _, a := range alerts {
		group := "-"
		if a.TargetGroup != nil {
			group = *a.TargetGroup
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			a.AlertID, a.Kind, a.Severity, a.Status, group, a.Occurrences,
			a.LastSeenAt.Format(time.RFC3339), a.Title)
	}
	return tw.Flush()
}

func readPassword(in io.Reader) (string, error) {
	if pw := os.Getenv("DEALCTL_PASSWORD"); pw != "" {
		return pw, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password required: set DEALCTL_PASSWORD or pipe it on stdin")
	}
	return line, nil
}
