package main

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"fleetmaint/internal/clients"
	"fleetmaint/internal/machine"
	"fleetmaint/internal/maintenance"
)

type clientFactory func() *clients.FleetClient

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func machinesCmd(client clientFactory) *cobra.Command {
	cmd := &cobra.Command{Use: "machines", Short: "Inspect and manage machines"}

	var in machine.RegisterInput
	var nickname string
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if nickname != "" {
				in.Nickname = &nickname
			}
			m, err := client().RegisterMachine(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), m)
		},
	}
	f := register.Flags()
	f.StringVar(&in.SerialNumber, "serial", "", "serial number")
	f.StringVar(&in.Brand, "brand", "", "brand")
	f.StringVar(&in.Model, "model", "", "model")
	f.StringVar(&nickname, "nickname", "", "optional nickname")
	f.StringVar(&in.MachineTypeID, "type", "", "machine type id")
	f.StringVar(&in.OwnerID, "owner", "", "owner id")
	f.StringVar(&in.CreatedByID, "created-by", "", "creator id")
	f.StringVar(&in.Status, "status", "", "initial status")

	var owner, status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List machines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ms, err := client().ListMachines(cmd.Context(), owner, status)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ms)
		},
	}
	list.Flags().StringVar(&owner, "owner", "", "filter by owner id")
	list.Flags().StringVar(&status, "status", "", "filter by status")

	get := &cobra.Command{
		Use:   "get <machine-id>",
		Short: "Show a machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := client().GetMachine(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), m)
		},
	}

	var expectedVersion int
	setStatus := &cobra.Command{
		Use:   "status <machine-id> <status>",
		Short: "Change a machine's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := client().ChangeStatus(cmd.Context(), args[0], strings.ToUpper(args[1]), expectedVersion)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), m)
		},
	}
	setStatus.Flags().IntVar(&expectedVersion, "version", 0, "expected version (0 skips the check)")

	del := &cobra.Command{
		Use:   "delete <machine-id>",
		Short: "Delete a machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().DeleteMachine(cmd.Context(), args[0])
		},
	}

	history := &cobra.Command{
		Use:   "history <machine-id>",
		Short: "Show the recorded history of a machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := client().History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}

	cmd.AddCommand(register, list, get, setStatus, del, history)
	return cmd
}

func alarmsCmd(client clientFactory) *cobra.Command {
	cmd := &cobra.Command{Use: "alarms", Short: "Manage maintenance alarms"}

	var activeOnly, inactiveOnly bool
	list := &cobra.Command{
		Use:   "list <machine-id>",
		Short: "List alarms of a machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var active *bool
			switch {
			case activeOnly:
				active = ptr(true)
			case inactiveOnly:
				active = ptr(false)
			}
			alarms, err := client().ListAlarms(cmd.Context(), args[0], active)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), alarms)
		},
	}
	list.Flags().BoolVar(&activeOnly, "active", false, "only active alarms")
	list.Flags().BoolVar(&inactiveOnly, "inactive", false, "only inactive alarms")
	list.MarkFlagsMutuallyExclusive("active", "inactive")

	var in maintenance.CreateAlarmInput
	var description string
	create := &cobra.Command{
		Use:   "create <machine-id>",
		Short: "Add a maintenance alarm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.MachineID = args[0]
			if description != "" {
				in.Description = &description
			}
			alarm, err := client().CreateAlarm(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), alarm)
		},
	}
	f := create.Flags()
	f.StringVar(&in.Title, "title", "", "alarm title")
	f.StringVar(&description, "description", "", "optional description")
	f.StringSliceVar(&in.RelatedParts, "part", nil, "related part (repeatable)")
	f.Float64Var(&in.IntervalHours, "interval", 0, "interval in operating hours")
	f.StringVar(&in.CreatedBy, "created-by", "", "creator id")

	var keepCounter bool
	reset := &cobra.Command{
		Use:   "reset <machine-id> <alarm-id>",
		Short: "Reset the accumulated hours of an alarm",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resetToZero *bool
			if keepCounter {
				resetToZero = ptr(false)
			}
			alarm, err := client().ResetAlarm(cmd.Context(), args[0], args[1], resetToZero)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), alarm)
		},
	}
	reset.Flags().BoolVar(&keepCounter, "no-reset", false, "leave the counter untouched")

	del := &cobra.Command{
		Use:   "delete <machine-id> <alarm-id>",
		Short: "Delete a maintenance alarm",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().DeleteAlarm(cmd.Context(), args[0], args[1])
		},
	}

	cmd.AddCommand(list, create, reset, del)
	return cmd
}

func ptr[T any](v T) *T { return &v }
