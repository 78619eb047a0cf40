package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/weatherhub/weatherhub/internal/crawler"
	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/service"
)

func newCrawlCmd() *cobra.Command {
	var (
		city    string
		start   string
		end     string
		outPath string
		save    bool
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Fetch weather history for a city",
		Long: `Download the monthly history pages for a city over a date range. Records can
be written to a CSV file, stored in the database (replacing the same span), or both.`,
		Example: `  weatherhub crawl --city kunming --start 2024-01-01 --end 2024-03-31 --out kunming.csv
  weatherhub crawl --city 北京 --start 2024-01-01 --end 2024-01-31 --store`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" && !save {
				return fmt.Errorf("nothing to do: pass --out and/or --store")
			}
			return runCrawl(cmd.OutOrStdout(), city, start, end, outPath, save)
		},
	}

	cmd.Flags().StringVar(&city, "city", "", "City pinyin or name (required)")
	cmd.Flags().StringVar(&start, "start", "", "First day, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&end, "end", "", "Last day, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&outPath, "out", "", "Write records to this CSV file (- for stdout)")
	cmd.Flags().BoolVar(&save, "store", false, "Replace the stored records for the range")
	cmd.MarkFlagRequired("city")
	cmd.MarkFlagRequired("start")

	return cmd
}

func runCrawl(out io.Writer, city, start, end, outPath string, save bool) error {
	ct, ok := crawler.LookupCity(city)
	if !ok {
		return fmt.Errorf("%q: %w", city, crawler.ErrUnsupportedCity)
	}
	from, err := service.ParseDay("start", start, true)
	if err != nil {
		return err
	}
	if end == "" {
		end = time.Now().Format(model.DateLayout)
	}
	to, err := service.ParseDay("end", end, true)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, false)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	records, err := newCrawler(cfg, logger).CrawlRange(ctx, ct.Pinyin, from, to)
	if err != nil {
		return fmt.Errorf("crawl %s: %w", ct.Name, err)
	}
	fmt.Fprintf(out, "Fetched %d records for %s (%s to %s)\n",
		len(records), ct.Name, from.Format(model.DateLayout), to.Format(model.DateLayout))

	if outPath != "" {
		if err := writeCSVFile(out, outPath, records); err != nil {
			return err
		}
	}

	if save {
		if len(records) == 0 {
			fmt.Fprintln(out, "No records fetched; stored data left untouched.")
			return nil
		}
		st, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		replaced, err := st.ReplaceWeatherRange(ctx, ct.Name,
			from.Format(model.DateLayout), to.Format(model.DateLayout), records)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Stored %d records (replaced %d)\n", len(records), replaced)
	}
	return nil
}

func writeCSVFile(out io.Writer, path string, records []model.WeatherRecord) error {
	if path == "-" {
		return crawler.WriteCSV(out, records)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := crawler.WriteCSV(f, records); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", path)
	return nil
}
