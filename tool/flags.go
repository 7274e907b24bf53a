package tool

import (
	"github.com/spf13/cobra"

	"github.com/moyoez/productshot/types"
)

// BindFlags registers the global override flags on the root command.
func BindFlags(cmd *cobra.Command) *types.Config {
	cfg := &types.Config{}
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.Log, "log", "", "log mode: dev|prod|none")
	flags.StringVar(&cfg.UseConfigPath, "config", "", "config file path (default ./config.yaml)")
	flags.IntVar(&cfg.UsePort, "port", 0, "override server port")
	flags.BoolVar(&cfg.UseHttps, "https", false, "serve over HTTPS with a self-signed certificate")
	flags.StringVar(&cfg.UseBaseURL, "base-url", "", "override the server base URL used by client commands")
	flags.StringVar(&cfg.UseCSRFToken, "csrf-token", "", "security token sent as X-CSRFToken")
	flags.StringVar(&cfg.UseUser, "user", "", "user sent in the Dh-User header")
	flags.IntVar(&cfg.Concurrency, "concurrency", 0, "maximum simultaneous uploads")
	flags.BoolVar(&cfg.SkipNotify, "skip-notify", false, "do not forward events to the notify socket")
	return cfg
}
