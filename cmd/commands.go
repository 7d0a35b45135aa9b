package main

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"book_spider/internal/app"
	"book_spider/internal/config"
	"book_spider/internal/errs"
	"book_spider/internal/events"
	"book_spider/internal/files"
	"book_spider/internal/logging"
	"book_spider/internal/shops"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type cli struct {
	configPath string
	logLevel   string
	skipCovers bool

	cfg    *config.SpiderConfig
	log    *logrus.Logger
	spider *app.SpiderApp
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	cmd := &cobra.Command{
		Use:   "book_spider",
		Short: "Collects book catalogues of online shops into spreadsheets",
		Long: `book_spider collects publishers and their books from my-shop.ru,
bebc.co.uk and studentsbook.net.

Collect the publishers of a shop first, then collect books of one publisher,
of a range of the saved list or of all of them. Every publisher gets a folder
with a workbook and the downloaded covers.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			return c.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.spider == nil {
				return nil
			}
			return c.spider.Close()
		},
	}

	cmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default $BOOK_SPIDER_CONFIG or config.yaml)")
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "overrides logic.log_level")
	cmd.PersistentFlags().BoolVar(&c.skipCovers, "no-covers", false, "do not download cover images")

	cmd.AddCommand(
		c.shopsCmd(),
		c.publishersCmd(),
		c.listCmd(),
		c.booksCmd(),
		c.bookCmd(),
		c.rangeCmd(),
		c.allCmd(),
	)
	return cmd
}

func (c *cli) setup(cmd *cobra.Command) error {
	path := c.configPath
	if path == "" {
		path = os.Getenv("BOOK_SPIDER_CONFIG")
	}
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Logic.LogLevel = c.logLevel
	}
	if c.skipCovers {
		cfg.Logic.SkipCovers = true
	}
	c.cfg = cfg
	c.log = logging.New(cfg.Logic.LogLevel, cmd.ErrOrStderr())

	bus := events.NewBus()
	bus.Subscribe(newProgressPrinter(c.log).handle)

	c.spider, err = app.NewSpiderApp(cfg, c.log, bus)
	return err
}

func checkShop(name string) error {
	for _, known := range shops.Names() {
		if known == name {
			return nil
		}
	}
	return fmt.Errorf("unknown shop %q, run `book_spider shops` for the list", name)
}

// shopArgs accepts a shop name followed by n-1 more arguments.
func shopArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return err
		}
		return checkShop(args[0])
	}
}

func newTable(cmd *cobra.Command) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(cmd.OutOrStdout())
	return t
}

func (c *cli) shopsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shops",
		Short: "Lists the supported shops",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stored := c.spider.HasStore()
			t := newTable(cmd)
			header := table.Row{"Shop", "Base URL", "Workers"}
			if stored {
				header = append(header, "Stored books", "Missing images", "Publishers")
			}
			t.AppendHeader(header)
			for _, name := range shops.Names() {
				sc, err := c.cfg.Shop(name)
				if err != nil {
					return err
				}
				workers := "per book"
				if sc.MaxWorkers > 0 {
					workers = strconv.Itoa(sc.MaxWorkers)
				}
				row := table.Row{name, sc.BaseURL, workers}
				if stored {
					st, err := c.spider.StoredStats(name)
					if err != nil {
						return err
					}
					row = append(row, st.Books, st.MissingImages, st.Publishers)
				}
				t.AppendRow(row)
			}
			t.Render()
			return nil
		},
	}
}

func (c *cli) publishersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publishers <shop>",
		Short: "Collects and saves the publishers of a shop",
		Args:  shopArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := c.spider.CollectPublishers(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d publishers saved for %s\n", len(list), args[0])
			return nil
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <shop>",
		Short: "Shows the saved publishers of a shop with their numbers",
		Args:  shopArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := c.spider.Publishers(args[0])
			if err != nil {
				return err
			}
			if len(list) == 0 {
				return app.ErrNoPublishers
			}
			t := newTable(cmd)
			t.AppendHeader(table.Row{"#", "Publisher", "ID", "Books"})
			for i, p := range list {
				count := ""
				if p.Count > 0 {
					count = strconv.Itoa(p.Count)
				}
				t.AppendRow(table.Row{i + 1, p.Name, p.ID, count})
			}
			t.Render()
			return nil
		},
	}
}

func (c *cli) booksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "books <shop> <publisher>",
		Short: "Collects the books of one saved publisher",
		Args:  shopArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			publisher, err := c.spider.FindPublisher(args[0], args[1])
			if err != nil {
				return err
			}
			books, err := c.spider.CollectBooks(cmd.Context(), args[0], publisher)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d books collected for %s\n", books, publisher.Name)
			return nil
		},
	}
}

func (c *cli) bookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "book <shop> <key>",
		Short: "Shows a book stored in the database",
		Long:  "The key is an ISBN or one of isbn:<isbn>, id:<shop id>, url:<page url>.",
		Args:  shopArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := c.spider.StoredBook(args[0], args[1])
			if err != nil {
				return err
			}
			t := newTable(cmd)
			for i, v := range files.Row(rec) {
				if s := fmt.Sprint(v); s != "" {
					t.AppendRow(table.Row{files.Headers[i], s})
				}
			}
			t.AppendRow(table.Row{"URL", rec.URL})
			if rec.ImageURL != "" {
				t.AppendRow(table.Row{"Image", rec.ImageURL})
			}
			t.Render()
			return nil
		},
	}
}

func (c *cli) rangeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "range <shop> <from> <to>",
		Short: "Collects the books of the saved publishers numbered from..to",
		Long:  "Numbers are the ones shown by `list`, starting at 1; both ends are included.",
		Args:  shopArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("from: %w", err)
			}
			to, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("to: %w", err)
			}
			summary, err := c.spider.CollectRange(cmd.Context(), args[0], from-1, to-1)
			c.printSummary(cmd, summary)
			return err
		},
	}
}

func (c *cli) allCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all <shop>",
		Short: "Collects the books of every saved publisher",
		Args:  shopArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := c.spider.CollectAll(cmd.Context(), args[0])
			c.printSummary(cmd, summary)
			return err
		},
	}
}

func (c *cli) printSummary(cmd *cobra.Command, summary []app.JobSummary) {
	if len(summary) == 0 {
		return
	}
	t := newTable(cmd)
	t.AppendHeader(table.Row{"Publisher", "Found", "Books", "Error"})
	found, total, failed := 0, 0, 0
	for _, s := range summary {
		msg := ""
		if s.Err != nil {
			msg = fmt.Sprintf("%s: %v", errs.Classify(s.Err), s.Err)
			failed++
		}
		found += s.Found
		total += s.Books
		t.AppendRow(table.Row{s.Publisher, s.Found, s.Books, msg})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d publishers, %d failed", len(summary), failed), found, total, ""})
	t.Render()
}

// progressPrinter logs progress in steps of a tenth of the job.
type progressPrinter struct {
	log *logrus.Logger

	mu   sync.Mutex
	last map[string]int
}

func newProgressPrinter(log *logrus.Logger) *progressPrinter {
	return &progressPrinter{log: log, last: map[string]int{}}
}

func (p *progressPrinter) handle(e events.Event) {
	entry := p.log.WithFields(logrus.Fields{"shop": e.Shop, "job": e.JobID})
	if e.Publisher != "" {
		entry = entry.WithField("publisher", e.Publisher)
	}

	switch e.Type {
	case events.TypeProgress:
		if e.Max <= 0 {
			return
		}
		step := e.Current * 10 / e.Max
		p.mu.Lock()
		prev, seen := p.last[e.JobID]
		if seen && step <= prev {
			p.mu.Unlock()
			return
		}
		p.last[e.JobID] = step
		p.mu.Unlock()
		entry.Infof("%d/%d", e.Current, e.Max)
	case events.TypeStatus:
		entry.Info(e.Text)
	case events.TypeError:
		entry.Error(e.Text)
	}
}
