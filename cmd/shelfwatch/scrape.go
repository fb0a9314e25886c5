package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/shelfwatch/shelfwatch/compare"
	"github.com/shelfwatch/shelfwatch/config"
	"github.com/shelfwatch/shelfwatch/models"
	"github.com/shelfwatch/shelfwatch/product"
	"github.com/shelfwatch/shelfwatch/scraper"
)

type scrapeFlags struct {
	mode    string
	retries int
	timeout time.Duration
	track   bool
}

func (f *scrapeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "mode", "auto", "fetch mode: auto, http, bypass_http or browser")
	cmd.Flags().IntVar(&f.retries, "retries", 0, "escalation passes before giving up (0 = config default)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "per-attempt timeout (0 = config default)")
}

func scrapeCmd() *cobra.Command {
	var flags scrapeFlags
	cmd := &cobra.Command{
		Use:   "scrape <url>",
		Short: "Scrape one product page and print the record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, args[0], flags)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&flags.track, "track", false, "persist the product and record a price-history point")
	return cmd
}

func runScrape(cmd *cobra.Command, url string, flags scrapeFlags) error {
	cfg := config.Load()
	initLogger(cfg.Log)

	ctx := cmd.Context()
	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	result, err := app.scraper.Scrape(ctx, url, scraper.Options{
		Mode:    scraper.ParseMode(flags.mode),
		Retries: flags.retries,
		Timeout: flags.timeout,
	})
	if err != nil {
		return err
	}

	rec, extractorName := app.registry.Extract(result.HTML, url)
	if rec.Title == "" {
		rec.Title = result.Title
	}

	resp := models.ScrapeResponse{
		Success:    true,
		StatusCode: result.StatusCode,
		FinalURL:   result.FinalURL,
		TierUsed:   string(result.TierUsed),
		Product:    rec,
		Extractor:  extractorName,
	}

	if flags.track {
		if app.tracker == nil {
			return errNoStore
		}
		id, err := app.tracker.Track(ctx, rec)
		if err != nil {
			return err
		}
		resp.ProductID = id
	}

	return printJSON(cmd, resp)
}

func compareCmd() *cobra.Command {
	var flags scrapeFlags
	var priceWeight, ratingWeight float64
	cmd := &cobra.Command{
		Use:   "compare <url> <url> [url...]",
		Short: "Scrape several product pages and print a comparison report",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, args, flags, priceWeight, ratingWeight)
		},
	}
	flags.register(cmd)
	cmd.Flags().Float64Var(&priceWeight, "price-weight", 0.6, "price weight for the best-value score")
	cmd.Flags().Float64Var(&ratingWeight, "rating-weight", 0.4, "rating weight for the best-value score")
	return cmd
}

func runCompare(cmd *cobra.Command, urls []string, flags scrapeFlags, priceWeight, ratingWeight float64) error {
	cfg := config.Load()
	initLogger(cfg.Log)

	ctx := cmd.Context()
	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	opts := scraper.Options{
		Mode:    scraper.ParseMode(flags.mode),
		Retries: flags.retries,
		Timeout: flags.timeout,
	}

	var products []*product.Record
	failures := make(map[string]*models.ErrorDetail)
	for _, url := range urls {
		rec, err := scrapeOne(ctx, app, url, opts)
		if err != nil {
			failures[url] = &models.ErrorDetail{
				Code:    models.ErrCodeExhausted,
				Message: err.Error(),
			}
			continue
		}
		products = append(products, rec)
	}

	resp := models.CompareResponse{
		Success:  len(products) > 0,
		Products: products,
	}
	if len(products) > 0 {
		resp.Report = compare.Compare(products)
		resp.BestValue = compare.BestValue(products, priceWeight, ratingWeight)
	}
	if len(failures) > 0 {
		resp.Failures = failures
	}

	return printJSON(cmd, resp)
}

func scrapeOne(ctx context.Context, app *app, url string, opts scraper.Options) (*product.Record, error) {
	result, err := app.scraper.Scrape(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	rec, _ := app.registry.Extract(result.HTML, url)
	if rec.Title == "" {
		rec.Title = result.Title
	}
	return rec, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	return nil
}
