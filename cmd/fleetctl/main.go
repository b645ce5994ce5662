// cmd/fleetctl/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"fleetmaint/internal/clients"
	"fleetmaint/internal/version"
)

type settings struct {
	APIURL   string `env:"FLEET_API_URL"   envDefault:"http://localhost:8080"`
	UserID   string `env:"FLEET_USER_ID"`
	UserType string `env:"FLEET_USER_TYPE"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var s settings
	root := &cobra.Command{
		Use:           "fleetctl",
		Short:         "Command line client for fleetd",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return env.Parse(&s)
		},
	}

	var userID, userType string
	root.PersistentFlags().StringVar(&userID, "user-id", "", "caller id (overrides FLEET_USER_ID)")
	root.PersistentFlags().StringVar(&userType, "user-type", "", "caller type (overrides FLEET_USER_TYPE)")

	client := func() *clients.FleetClient {
		if userID != "" {
			s.UserID = userID
		}
		if userType != "" {
			s.UserType = userType
		}
		return clients.NewFleetClient(s.APIURL, clients.WithIdentity(s.UserID, s.UserType))
	}

	root.AddCommand(machinesCmd(client), alarmsCmd(client))
	version.AddCommand(root)
	return root
}
