package integration

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// APIMode selects the provider protocol.
type APIMode string

const (
	APIModeNative APIMode = "native"
	APIModeOpenAI APIMode = "openai"
)

// Entry is one configured conversation agent.
type Entry struct {
	ID       string  `yaml:"id"`
	Title    string  `yaml:"title"`
	FolderID string  `yaml:"folder_id"`
	APIKey   string  `yaml:"api_key"`
	APIMode  APIMode `yaml:"api_mode"`
	Options  Options `yaml:"options"`
}

func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	type plain Entry
	p := plain{APIMode: APIModeNative, Options: DefaultOptions()}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*e = Entry(p)
	return nil
}

func (e Entry) Validate() error {
	var errs []error
	if e.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if e.FolderID == "" {
		errs = append(errs, errors.New("folder_id is required"))
	}
	if e.APIKey == "" {
		errs = append(errs, errors.New("api_key is required"))
	}
	switch e.APIMode {
	case APIModeNative, APIModeOpenAI:
	default:
		errs = append(errs, fmt.Errorf("api_mode %q is not supported", e.APIMode))
	}
	if err := e.Options.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("entry %q: %w", e.ID, err)
	}
	return nil
}

// HomeConfig describes the host the tools talk to.
type HomeConfig struct {
	URL      string `yaml:"url"`
	Token    string `yaml:"token"`
	TimeZone string `yaml:"time_zone"`
}

type SensorConfig struct {
	Name         string        `yaml:"name"`
	Entry        string        `yaml:"entry"`
	SystemPrompt string        `yaml:"system_prompt"`
	UserPrompt   string        `yaml:"user_prompt"`
	Interval     time.Duration `yaml:"interval"`
}

type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type ImagesConfig struct {
	Dir string    `yaml:"dir"`
	S3  *S3Config `yaml:"s3"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the file format read by the command line tool.
type Config struct {
	Home    HomeConfig     `yaml:"home"`
	Entries []Entry        `yaml:"entries"`
	Sensors []SensorConfig `yaml:"sensors"`
	Cache   CacheConfig    `yaml:"cache"`
	Images  ImagesConfig   `yaml:"images"`
	Server  ServerConfig   `yaml:"server"`
}

// Environment variables overriding the file.
const (
	EnvFolderID  = "YANDEXGPT_FOLDER_ID"
	EnvAPIKey    = "YANDEXGPT_API_KEY"
	EnvHassURL   = "HASS_URL"
	EnvHassToken = "HASS_TOKEN"
)

// LoadConfig reads path (if non-empty) and applies environment overrides.
// Without a file a single entry "default" is built from the environment.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if len(cfg.Entries) == 0 {
		cfg.Entries = []Entry{{ID: "default", Title: "YandexGPT", APIMode: APIModeNative, Options: DefaultOptions()}}
	}
	cfg.applyEnv()
	cfg.withDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	for i := range c.Entries {
		if v := os.Getenv(EnvFolderID); v != "" {
			c.Entries[i].FolderID = v
		}
		if v := os.Getenv(EnvAPIKey); v != "" {
			c.Entries[i].APIKey = v
		}
	}
	if v := os.Getenv(EnvHassURL); v != "" {
		c.Home.URL = v
	}
	if v := os.Getenv(EnvHassToken); v != "" {
		c.Home.Token = v
	}
}

func (c *Config) withDefaults() {
	if c.Home.TimeZone == "" {
		c.Home.TimeZone = "UTC"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Images.Dir == "" {
		c.Images.Dir = "."
	}
	for i := range c.Sensors {
		if c.Sensors[i].Interval <= 0 {
			c.Sensors[i].Interval = 10 * time.Minute
		}
		if c.Sensors[i].Entry == "" && len(c.Entries) > 0 {
			c.Sensors[i].Entry = c.Entries[0].ID
		}
	}
}

// Entry returns the entry with id.
func (c *Config) Entry(id string) (Entry, bool) {
	for _, e := range c.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}
