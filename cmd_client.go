package main

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/moyoez/productshot/form"
	"github.com/moyoez/productshot/guard"
	"github.com/moyoez/productshot/metrics"
	"github.com/moyoez/productshot/transfer"
	"github.com/moyoez/productshot/types"
)

func (a *app) deleteCmd() *cobra.Command {
	var (
		productID, imageID int64
		category           string
	)
	cmd := &cobra.Command{
		Use:   "delete --product N --image-id M --category C",
		Short: "Delete an uploaded image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := types.ParseCategory(category)
			if err != nil {
				return err
			}
			if _, err := a.client(cmd.Context()).DeleteImage(cmd.Context(), productID, imageID, c); err != nil {
				return err
			}
			fmt.Printf("deleted image %d from product %d\n", imageID, productID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&productID, "product", 0, "product id (required)")
	cmd.Flags().Int64Var(&imageID, "image-id", 0, "image id (required)")
	cmd.Flags().StringVar(&category, "category", "", "image category (required)")
	_ = cmd.MarkFlagRequired("product")
	_ = cmd.MarkFlagRequired("image-id")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func (a *app) validateCmd() *cobra.Command {
	var productID int64
	cmd := &cobra.Command{
		Use:   "validate --product N",
		Short: "Ask the server whether a product is ready for submission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client(cmd.Context()).Validate(cmd.Context(), productID, url.Values{})
			if err != nil {
				return err
			}
			if resp.Valid {
				fmt.Println("valid")
				return nil
			}
			printErrors(resp.Errors)
			return errFailed
		},
	}
	cmd.Flags().Int64Var(&productID, "product", 0, "product id (required)")
	_ = cmd.MarkFlagRequired("product")
	return cmd
}

func (a *app) submitCmd() *cobra.Command {
	opts := &uploadOptions{}
	var (
		product types.ProductInput
		plain   bool
	)
	cmd := &cobra.Command{
		Use:   "submit --product N --name NAME [files...]",
		Short: "Upload images, check the form and submit it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := a.client(ctx)
			f := form.New(opts.productID)
			f.SetProduct(product)
			if len(args) > 0 {
				if err := prepareForm(f, args, opts); err != nil {
					return err
				}
			}

			activity := []guard.Activity{f}
			if !plain && len(args) > 0 {
				run := newUploadRun(client, f, a.cfg.Client.Concurrency, opts.tui,
					metrics.NewUploads(metrics.WithRegistry(prometheus.NewRegistry())))
				if err := run.execute(ctx, opts.retry); err != nil {
					return err
				}
				printSections(f)
				activity = append(activity, run.dispatcher)
			}

			decision := guard.New(client, activity...).Check(ctx, f)
			if !decision.Proceed() {
				printErrors(decision.Errors)
				return errFailed
			}
			if decision.Action == guard.Fallback {
				fmt.Printf("submitting without validation: %v\n", decision.Reason)
			}

			resp, err := client.Submit(ctx, opts.productID, decision.Values, f.Files())
			if errors.Is(err, transfer.ErrRejected) && resp != nil {
				printErrors(append(resp.Errors, resp.Error))
				return errFailed
			}
			if err != nil {
				return err
			}
			state := "incomplete"
			if resp.SubmissionComplete {
				state = "complete"
			}
			fmt.Printf("product %d submitted (%s, %d files stored)\n", opts.productID, state, resp.Stored)
			return nil
		},
	}
	opts.bind(cmd)
	flags := cmd.Flags()
	flags.StringVar(&product.ProductName, "name", "", "product name")
	flags.BoolVar(&product.IsVarietyPack, "variety-pack", false, "the product is a variety pack")
	flags.BoolVar(&product.IsOffline, "offline", false, "the product is sold offline only")
	flags.BoolVar(&product.HasMultipleNutritionFacts, "multiple-nutrition", false, "the package has several nutrition panels")
	flags.BoolVar(&product.HasMultipleBarcodes, "multiple-barcodes", false, "the package has several barcodes")
	flags.BoolVar(&plain, "plain", false, "send files with the form instead of uploading them first")
	flags.BoolVar(&opts.tui, "tui", false, "show a progress view")
	flags.BoolVar(&opts.retry, "retry", false, "retry failed uploads once as new tasks")
	return cmd
}

func printErrors(errs []string) {
	for _, e := range errs {
		if e != "" {
			fmt.Printf("error: %s\n", e)
		}
	}
}
