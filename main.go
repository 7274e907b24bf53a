package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moyoez/productshot/tool"
	"github.com/moyoez/productshot/types"
	"github.com/moyoez/productshot/transfer"
)

// errFailed marks a command that already reported its failure.
var errFailed = errors.New("one or more operations failed")

type app struct {
	flags *types.Config
	cfg   types.AppConfig
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:   "productshot",
		Short: "Product image submission server and upload client",
		Long: `productshot collects product submissions: a name, package flags and
barcode, nutrition facts, ingredients and package view images.

"serve" runs the submission server. The other commands drive it from the
terminal: files are queued and uploaded in the background, a bounded number
at a time, before the form is checked and submitted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	a.flags = tool.BindFlags(root)

	root.AddCommand(
		a.serveCmd(),
		a.uploadCmd(),
		a.deleteCmd(),
		a.validateCmd(),
		a.submitCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

func (a *app) setup() error {
	tool.InitLogger()
	tool.SetLogMode(a.flags.Log)
	cfg, err := tool.LoadConfig(a.flags.UseConfigPath)
	if err != nil {
		return err
	}
	tool.ApplyFlags(&cfg, *a.flags)
	a.cfg = cfg
	return nil
}

// client builds the transfer client, fetching a security token when none is configured.
func (a *app) client(ctx context.Context) *transfer.Client {
	c := transfer.NewClient(a.cfg.Client)
	if c.CSRFToken() == "" && tool.BuildCSRFURL(a.cfg.Client) != "" {
		if _, err := c.FetchCSRFToken(ctx); err != nil {
			tool.DefaultLogger.Warnf("Could not fetch a security token, continuing without: %v", err)
		}
	}
	return c
}
