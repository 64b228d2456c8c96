package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"stockharvest/internal/components/configutil"
	"stockharvest/internal/db"
	"stockharvest/internal/scrapers/stockanalysis"

	"github.com/joho/godotenv"
)

const (
	FetchModeBrowser = "browser"
	FetchModeStatic  = "static"

	ProductRatings = "ratings"
	ProductHistory = "history"
)

type ScraperConfig struct {
	RatingsBaseUrl  string `json:"ratings_base_url"`
	HistoryBaseUrl  string `json:"history_base_url"`
	HistoryQuery    string `json:"history_query"`
	RatingsSelector string `json:"ratings_selector"`
	HistorySelector string `json:"history_selector"`
	// either "browser" or "static", static fetches the ratings page over
	// plain http and cannot download history
	FetchMode          string  `json:"fetch_mode"`
	PageTimeoutSeconds int     `json:"page_timeout_seconds"`
	UserAgent          string  `json:"user_agent"`
	RequestsPerSecond  float64 `json:"requests_per_second"`
	BypassCloudflare   bool    `json:"bypass_cloudflare"`
}

type BrowserConfig struct {
	Headful bool `json:"headful"`
}

type DownloadConfig struct {
	Dir                   string `json:"dir"`
	GenericName           string `json:"generic_name"`
	// zero picks the default, a negative value disables the settle delay
	SettleSeconds         int    `json:"settle_seconds"`
	WaitSeconds           int    `json:"wait_seconds"`
	// zero picks the default, a negative value removes the per-strategy bound
	AttemptTimeoutSeconds int    `json:"attempt_timeout_seconds"`
	AttributeSelector     string `json:"attribute_selector"`
	StructuralSelector    string `json:"structural_selector"`
}

type HarvestConfig struct {
	// which data products a tick refreshes, "ratings" and/or "history"
	Products []string `json:"products"`
	// cron spec of the run command
	Schedule string `json:"schedule"`
	// tickers tracked when the run command starts
	Tickers []string `json:"tickers"`
}

type DiagnosticsConfig struct {
	DisableScreenshots bool   `json:"disable_screenshots"`
	ScreenshotDir      string `json:"screenshot_dir"`
	PerfStats          bool   `json:"perf_stats"`
}

type Config struct {
	LogLevel    string            `json:"log_level"`
	Database    db.Config         `json:"database"`
	Scraper     ScraperConfig     `json:"scraper"`
	Browser     BrowserConfig     `json:"browser"`
	Download    DownloadConfig    `json:"download"`
	Harvest     HarvestConfig     `json:"harvest"`
	Diagnostics DiagnosticsConfig `json:"diagnostics"`
}

// Load reads the config file at path (merged with its .local override),
// then applies a .env file and STOCKHARVEST_* environment variables on top.
// A missing config file is not an error, the environment alone may be enough.
func Load(path string) (Config, error) {
	config, err := configutil.ReadConfig[Config](path)
	if err != nil && !errors.Is(err, configutil.ErrNotFound) {
		return Config{}, err
	}

	err = godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	err = config.applyEnv()
	if err != nil {
		return Config{}, err
	}
	config.applyDefaults()
	return config, nil
}

func (c *Config) applyEnv() error {
	strs := []struct {
		key string
		out *string
	}{
		{"STOCKHARVEST_LOG_LEVEL", &c.LogLevel},
		{"STOCKHARVEST_DB_DRIVER", &c.Database.Driver},
		{"STOCKHARVEST_DB_FILE", &c.Database.File},
		{"STOCKHARVEST_DB_URL", &c.Database.Url},
		{"STOCKHARVEST_DB_AUTH_TOKEN", &c.Database.AuthToken},
		{"STOCKHARVEST_DB_HOST", &c.Database.Host},
		{"STOCKHARVEST_DB_USER", &c.Database.User},
		{"STOCKHARVEST_DB_PASSWORD", &c.Database.Password},
		{"STOCKHARVEST_DB_NAME", &c.Database.Name},
		{"STOCKHARVEST_DB_SSLMODE", &c.Database.SSLMode},
	}
	for _, s := range strs {
		if value, ok := os.LookupEnv(s.key); ok && value != "" {
			*s.out = value
		}
	}

	if value := os.Getenv("STOCKHARVEST_DB_PORT"); value != "" {
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("STOCKHARVEST_DB_PORT: %w", err)
		}
		c.Database.Port = port
	}
	return nil
}

func orDefault[T comparable](value *T, fallback T) {
	var zero T
	if *value == zero {
		*value = fallback
	}
}

func (c *Config) applyDefaults() {
	orDefault(&c.LogLevel, "info")
	orDefault(&c.Database.Driver, db.DriverSQLite)
	if c.Database.Driver == db.DriverSQLite {
		orDefault(&c.Database.File, "<dev_state>/stockharvest.db")
	}

	orDefault(&c.Scraper.RatingsBaseUrl, stockanalysis.DefaultBaseUrl)
	orDefault(&c.Scraper.HistoryBaseUrl, stockanalysis.DefaultBaseUrl)
	orDefault(&c.Scraper.HistoryQuery, stockanalysis.DefaultHistoryQuery)
	orDefault(&c.Scraper.RatingsSelector, stockanalysis.DefaultRatingsSelector)
	orDefault(&c.Scraper.HistorySelector, stockanalysis.DefaultHistorySelector)
	orDefault(&c.Scraper.FetchMode, FetchModeBrowser)
	orDefault(&c.Scraper.PageTimeoutSeconds, 30)
	orDefault(&c.Scraper.UserAgent, "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")

	orDefault(&c.Download.Dir, "<dev_state>/downloads")
	orDefault(&c.Download.GenericName, "download.csv")
	orDefault(&c.Download.SettleSeconds, 2)
	orDefault(&c.Download.WaitSeconds, 10)
	orDefault(&c.Download.AttemptTimeoutSeconds, 5)
	orDefault(&c.Download.AttributeSelector, stockanalysis.DefaultSelectors.Attribute)
	orDefault(&c.Download.StructuralSelector, stockanalysis.DefaultSelectors.Structural)

	if len(c.Harvest.Products) == 0 {
		c.Harvest.Products = []string{ProductRatings}
	}
	orDefault(&c.Harvest.Schedule, "@every 5m")

	orDefault(&c.Diagnostics.ScreenshotDir, ".")
}

// Validate reports configuration problems that must stop the process before
// it touches the network.
func (c Config) Validate() error {
	var errs []error

	err := c.Database.Validate()
	if err != nil {
		errs = append(errs, err)
	}
	if c.Database.Driver == db.DriverPostgres && c.Database.Password == "" {
		errs = append(errs, fmt.Errorf("database.password (STOCKHARVEST_DB_PASSWORD) must be set for the postgres driver"))
	}
	if c.Database.Driver == db.DriverLibsql &&
		!strings.HasPrefix(c.Database.Url, "file:") &&
		c.Database.AuthToken == "" {
		errs = append(errs, fmt.Errorf("database.auth_token (STOCKHARVEST_DB_AUTH_TOKEN) must be set for a remote libsql database"))
	}

	switch c.Scraper.FetchMode {
	case FetchModeBrowser, FetchModeStatic:
	default:
		errs = append(errs, fmt.Errorf("unknown scraper.fetch_mode '%s'", c.Scraper.FetchMode))
	}

	for _, product := range c.Harvest.Products {
		switch product {
		case ProductRatings:
		case ProductHistory:
			if c.Scraper.FetchMode == FetchModeStatic {
				errs = append(errs, fmt.Errorf("the history product needs scraper.fetch_mode 'browser'"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown harvest product '%s'", product))
		}
	}

	return errors.Join(errs...)
}

func (c Config) HasProduct(product string) bool {
	for _, p := range c.Harvest.Products {
		if p == product {
			return true
		}
	}
	return false
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// disabledOrSeconds maps the negative "disabled" setting to a zero duration.
func disabledOrSeconds(n int) time.Duration {
	if n < 0 {
		return 0
	}
	return seconds(n)
}

func (c Config) PageTimeout() time.Duration {
	return seconds(c.Scraper.PageTimeoutSeconds)
}

func (c Config) FetchOptions() stockanalysis.FetchOptions {
	return stockanalysis.FetchOptions{
		URLs: stockanalysis.URLs{
			RatingsBase:  c.Scraper.RatingsBaseUrl,
			HistoryBase:  c.Scraper.HistoryBaseUrl,
			HistoryQuery: c.Scraper.HistoryQuery,
		},
		RatingsSelector: c.Scraper.RatingsSelector,
		HistorySelector: c.Scraper.HistorySelector,
		PageTimeout:     c.PageTimeout(),
	}
}

func (c Config) StaticOptions() stockanalysis.StaticOptions {
	return stockanalysis.StaticOptions{
		FetchOptions:      c.FetchOptions(),
		UserAgent:         c.Scraper.UserAgent,
		RequestsPerSecond: c.Scraper.RequestsPerSecond,
		BypassCloudflare:  c.Scraper.BypassCloudflare,
	}
}

// DownloadOptions needs the resolved download directory since the browser
// is given an absolute path.
func (c Config) DownloadOptions(dir string) stockanalysis.DownloadOptions {
	return stockanalysis.DownloadOptions{
		Dir:         dir,
		GenericName: c.Download.GenericName,
		Settle:      disabledOrSeconds(c.Download.SettleSeconds),
		Wait:        seconds(c.Download.WaitSeconds),
	}
}

func (c Config) Selectors() stockanalysis.Selectors {
	return stockanalysis.Selectors{
		Attribute:  c.Download.AttributeSelector,
		Structural: c.Download.StructuralSelector,
	}
}

func (c Config) AttemptTimeout() time.Duration {
	return disabledOrSeconds(c.Download.AttemptTimeoutSeconds)
}
