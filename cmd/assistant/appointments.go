package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/assistant-desk/internal/aggregate"
	"github.com/zhouzirui/assistant-desk/internal/backend"
	"github.com/zhouzirui/assistant-desk/internal/model/appointment"
	"github.com/zhouzirui/assistant-desk/internal/service/appointments"
)

type listFlags struct {
	clientID string
	status   string
	date     string
	search   string
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.clientID, "client", "", "only appointments of this client")
	cmd.Flags().StringVar(&f.status, "status", "all", "status filter: all|pending|confirmed|cancelled|completed")
	cmd.Flags().StringVar(&f.date, "date", "all", "date filter: all|today|upcoming|past")
	cmd.Flags().StringVar(&f.search, "search", "", "case-insensitive search over service, client and notes")
}

func (f *listFlags) criteria() appointment.FilterCriteria {
	return appointment.FilterCriteria{
		Status: appointment.StatusFilter(f.status),
		Date:   appointment.DateFilter(f.date),
		Search: f.search,
	}
}

// withService loads the store, runs fn and prints the resulting snapshot.
func withService(cmd *cobra.Command, flags *listFlags, fn func(ctx context.Context, svc *appointments.Service) error) error {
	ctx := cmd.Context()
	engine := aggregate.NewEngine()
	defer engine.Close()

	if err := engine.SetFilterCriteria(flags.criteria()); err != nil {
		return err
	}

	svc := appointments.NewService(backend.New(cfg.Backend), engine)
	if err := svc.Load(ctx, backend.ListFilter{ClientID: flags.clientID}); err != nil {
		return err
	}
	if fn != nil {
		if err := fn(ctx, svc); err != nil {
			return err
		}
	}

	printSnapshot(cmd.OutOrStdout(), engine.Snapshot())
	return nil
}

func newAppointmentsCommand() *cobra.Command {
	flags := &listFlags{}

	cmd := &cobra.Command{
		Use:     "appointments",
		Aliases: []string{"appt"},
		Short:   "List and manage appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, flags, nil)
		},
	}
	flags.register(cmd)

	statusCmd := func(use, short string, action func(*appointments.Service, context.Context, int64) (appointment.Appointment, error)) *cobra.Command {
		sub := &cobra.Command{
			Use:   use + " <id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return withService(cmd, flags, func(ctx context.Context, svc *appointments.Service) error {
					_, err := action(svc, ctx, id)
					return err
				})
			},
		}
		flags.register(sub)
		return sub
	}

	cmd.AddCommand(
		statusCmd("confirm", "Confirm an appointment", (*appointments.Service).Confirm),
		statusCmd("cancel", "Cancel an appointment", (*appointments.Service).Cancel),
		statusCmd("complete", "Mark an appointment as completed", (*appointments.Service).Complete),
		newRescheduleCommand(),
		newDeleteCommand(),
		newBookCommand(),
	)
	return cmd
}

func newRescheduleCommand() *cobra.Command {
	flags := &listFlags{}
	cmd := &cobra.Command{
		Use:   "reschedule <id> <RFC3339 time>",
		Short: "Move an appointment to a new time",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			when, err := time.Parse(time.RFC3339, args[1])
			if err != nil {
				return fmt.Errorf("invalid time %q: %w", args[1], err)
			}
			return withService(cmd, flags, func(ctx context.Context, svc *appointments.Service) error {
				_, err := svc.Reschedule(ctx, id, when)
				return err
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newDeleteCommand() *cobra.Command {
	flags := &listFlags{}
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, flags, func(ctx context.Context, svc *appointments.Service) error {
				return svc.Delete(ctx, id)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newBookCommand() *cobra.Command {
	flags := &listFlags{}
	var (
		service  string
		at       string
		duration int
		notes    string
	)
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book a new appointment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.clientID == "" {
				return fmt.Errorf("--client is required")
			}
			when, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("invalid --at %q: %w", at, err)
			}
			in := appointment.CreateInput{
				ClientID:        flags.clientID,
				ServiceType:     service,
				ScheduledDate:   when,
				DurationMinutes: duration,
			}
			if notes != "" {
				in.Notes = &notes
			}
			return withService(cmd, flags, func(ctx context.Context, svc *appointments.Service) error {
				_, err := svc.Create(ctx, in)
				return err
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&service, "service", "Consultation", "service type")
	cmd.Flags().StringVar(&at, "at", "", "appointment time (RFC3339)")
	cmd.Flags().IntVar(&duration, "duration", 60, "duration in minutes")
	cmd.Flags().StringVar(&notes, "notes", "", "optional notes")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check backend health and overall counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := backend.New(cfg.Backend)
			health, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backend %s (%s)\n", health.Status, health.Timestamp.Local().Format(time.RFC1123))
			printStats(out, stats)
			return nil
		},
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid appointment id %q", raw)
	}
	return id, nil
}

func printStats(out io.Writer, s appointment.StatsSummary) {
	fmt.Fprintf(out, "total %d | pending %d | confirmed %d | cancelled %d | completed %d\n",
		s.Total, s.Pending, s.Confirmed, s.Cancelled, s.Completed)
}

func printSnapshot(out io.Writer, snap aggregate.Snapshot) {
	printStats(out, snap.Stats)
	fmt.Fprintf(out, "showing %d (status=%s date=%s search=%q)\n\n",
		len(snap.View), snap.Criteria.Status, snap.Criteria.Date, snap.Criteria.Search)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tSERVICE\tCLIENT\tSTATUS\tNOTES")
	for _, a := range snap.View {
		notes := ""
		if a.Notes != nil {
			notes = *a.Notes
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.ScheduledDate.Local().Format("2006-01-02 15:04"), a.ServiceType, a.ClientID, a.Status, notes)
	}
	_ = tw.Flush()
}
