package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v2"
)

const (
	ShopMyShop       = "my-shop.ru"
	ShopBebc         = "bebc.co.uk"
	ShopStudentsbook = "studentsbook.net"
)

type ShopConfig struct {
	BaseURL          string `yaml:"base_url"`
	APIURL           string `yaml:"api_url"`
	FeedURL          string `yaml:"feed_url"`
	ImageHost        string `yaml:"image_host"`
	SpoofBot         bool   `yaml:"spoof_bot"`
	VerifySSL        *bool  `yaml:"verify_ssl"`
	CloudflareBypass bool   `yaml:"cloudflare_bypass"`
	RespectRobots    bool   `yaml:"respect_robots"`
	MaxWorkers       int    `yaml:"max_workers"`
	PageSize         int    `yaml:"page_size"`

	RootCategories      []string `yaml:"root_categories"`
	PublisherFacet      string   `yaml:"publisher_facet"`
	DiscontinuedMarkers []string `yaml:"discontinued_markers"`

	PlaceholderImage string `yaml:"placeholder_image"`
	MissingImageURL  string `yaml:"missing_image_url"`
}

// TLSVerify reports whether certificates must be checked; unset means yes.
func (s ShopConfig) TLSVerify() bool {
	return s.VerifySSL == nil || *s.VerifySSL
}

type DBConfig struct {
	Connection  string `yaml:"connection"`
	Database    string `yaml:"database"`
	Collections struct {
		Books string `yaml:"books"`
	} `yaml:"collections"`
}

type LogicConfig struct {
	MaxAttempts      int    `yaml:"max_attempts"`
	BaseDelaySec     int    `yaml:"base_delay_sec"`
	TimeoutSec       int    `yaml:"timeout_sec"`
	StaggerMS        int    `yaml:"stagger_ms"`
	BotUserAgent     string `yaml:"bot_user_agent"`
	LogLevel         string `yaml:"log_level"`
	OutputDir        string `yaml:"output_dir"`
	DataDir          string `yaml:"data_dir"`
	WriteShopLogFile bool   `yaml:"write_shop_log_file"`
	SkipCovers       bool   `yaml:"skip_covers"`
}

func (l LogicConfig) BaseDelay() time.Duration {
	return time.Duration(l.BaseDelaySec) * time.Second
}

func (l LogicConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSec) * time.Second
}

func (l LogicConfig) Stagger() time.Duration {
	return time.Duration(l.StaggerMS) * time.Millisecond
}

type SpiderConfig struct {
	DB    DBConfig              `yaml:"db"`
	Logic LogicConfig           `yaml:"logic"`
	Shops map[string]ShopConfig `yaml:"shops"`
}

func (c *SpiderConfig) Shop(name string) (ShopConfig, error) {
	sc, ok := c.Shops[name]
	if !ok {
		return ShopConfig{}, fmt.Errorf("shop %q is not configured", name)
	}
	return sc, nil
}

func boolPtr(v bool) *bool { return &v }

func Default() *SpiderConfig {
	cfg := &SpiderConfig{
		Logic: LogicConfig{
			MaxAttempts:      10,
			BaseDelaySec:     10,
			TimeoutSec:       40,
			StaggerMS:        200,
			BotUserAgent:     "Mozilla/5.0 (compatible; YandexBot/3.0; +http://yandex.com/bots)",
			LogLevel:         "debug",
			OutputDir:        "content of shops",
			DataDir:          ".data",
			WriteShopLogFile: true,
		},
		Shops: map[string]ShopConfig{
			ShopMyShop: {
				BaseURL:             "https://my-shop.ru",
				APIURL:              "https://api.my-shop.ru/cgi-bin/shop2.pl",
				ImageHost:           "https://static2.my-shop.ru",
				SpoofBot:            true,
				VerifySSL:           boolPtr(true),
				PageSize:            40,
				RootCategories:      []string{"3", "2665", "3227"},
				PublisherFacet:      "производитель",
				DiscontinuedMarkers: []string{"[old"},
				MissingImageURL:     "https://studentsbook.net/bitrix/templates/aspro_mshop/images/no_photo_medium.png",
			},
			ShopBebc: {
				BaseURL:          "https://www.bebc.co.uk",
				SpoofBot:         true,
				VerifySSL:        boolPtr(true),
				PageSize:         18,
				PlaceholderImage: "noimageavailablebig.jpg",
			},
			ShopStudentsbook: {
				BaseURL:          "https://studentsbook.net",
				FeedURL:          "https://studentsbook.net/bitrix/catalog_export/yandex_yml.php",
				SpoofBot:         true,
				VerifySSL:        boolPtr(false),
				MaxWorkers:       20,
				PlaceholderImage: "no_photo_medium.png",
				MissingImageURL:  "https://studentsbook.net/bitrix/templates/aspro_mshop/images/no_photo_medium.png",
			},
		},
	}
	cfg.DB.Database = "book_spider"
	cfg.DB.Collections.Books = "books"
	return cfg
}

// LoadConfig reads path and fills every unset value from Default. A missing
// file is not an error.
func LoadConfig(path string) (*SpiderConfig, error) {
	defaults := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaults, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg SpiderConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := mergo.Merge(&cfg.Logic, defaults.Logic); err != nil {
		return nil, err
	}
	if err := mergo.Merge(&cfg.DB, defaults.DB); err != nil {
		return nil, err
	}
	if cfg.Shops == nil {
		cfg.Shops = map[string]ShopConfig{}
	}
	for name, def := range defaults.Shops {
		sc := cfg.Shops[name]
		if err := mergo.Merge(&sc, def); err != nil {
			return nil, fmt.Errorf("merge defaults for %s: %w", name, err)
		}
		cfg.Shops[name] = sc
	}

	return &cfg, nil
}
