package cmd

import (
	"fmt"
	"io"

	"fleet-reconciliation-service/cmd/reconciler/config"
	"fleet-reconciliation-service/internal/deployment"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// deploymentsCmd represents the deployments command
var deploymentsCmd = &cobra.Command{
	Use:   "deployments",
	Short: "List the configured deployments",
	Long: `Deployments lists the deployments of the registry (--registry, or the
built-in list) with their vendor and report addresses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := config.LoadRegistry(viper.GetString("registry"))
		if err != nil {
			return err
		}
		printDeployments(cmd.OutOrStdout(), registry.All())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deploymentsCmd)
}

func printDeployments(w io.Writer, deployments []*deployment.Deployment) {
	fmt.Fprintf(w, "%-8s %-8s %-36s %s\n", "ID", "VENDOR", "SEND", "REPLY")
	for _, d := range deployments {
		fmt.Fprintf(w, "%-8s %-8s %-36s %s\n", d.ID(), d.Vendor, d.SendEmail, d.ReplyEmail)
	}
	fmt.Fprintf(w, "\n%d deployments\n", len(deployments))
}
