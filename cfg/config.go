// Package cfg loads the configuration file, in YAML or TOML.
package cfg

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/creativeprojects/imapfilter/lib"
	"github.com/creativeprojects/imapfilter/rules"
	"github.com/creativeprojects/imapfilter/runner"
	"github.com/creativeprojects/imapfilter/session"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// MinCleanDays is the smallest age of the messages deleted by the clean command
const MinCleanDays = 2

type Config struct {
	Server          string `yaml:"server" toml:"server"`
	Port            int    `yaml:"port" toml:"port"`
	User            string `yaml:"user" toml:"user"`
	Password        string `yaml:"password" toml:"password"`
	PasswordKeyring bool   `yaml:"password_keyring" toml:"password_keyring"`
	Mailbox         string `yaml:"mailbox" toml:"mailbox"`
	TLS             TLS    `yaml:"tls" toml:"tls"`

	Folders         Folders `yaml:"folders" toml:"folders"`
	CreateFolders   bool    `yaml:"create_folders" toml:"create_folders"`
	DropAttachments bool    `yaml:"drop_attachments" toml:"drop_attachments"`

	// Exchange shortens the default idle timeout: the server drops idling clients sooner
	Exchange     bool          `yaml:"exchange" toml:"exchange"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" toml:"idle_timeout"`
	PollInterval time.Duration `yaml:"poll_interval" toml:"poll_interval"`
	RetryDelay   time.Duration `yaml:"retry_delay" toml:"retry_delay"`
	AuthRetries  int           `yaml:"auth_retries" toml:"auth_retries"`
	MaxBatch     int           `yaml:"max_batch" toml:"max_batch"`

	StateDir   string `yaml:"state_dir" toml:"state_dir"`
	CursorFile string `yaml:"cursor_file" toml:"cursor_file"`
	AuditFile  string `yaml:"audit_file" toml:"audit_file"`
	// LearnDir is a maildir receiving the headers of spam. Empty to disable.
	LearnDir string `yaml:"learn_dir" toml:"learn_dir"`

	Whitelist   []string `yaml:"whitelist" toml:"whitelist"`
	Blacklist   []string `yaml:"blacklist" toml:"blacklist"`
	Graylist    []string `yaml:"graylist" toml:"graylist"`
	Me          []string `yaml:"me" toml:"me"`
	FolderRules []string `yaml:"folder_rules" toml:"folder_rules"`

	Clean Clean `yaml:"clean" toml:"clean"`
}

type TLS struct {
	Disabled   bool `yaml:"disabled" toml:"disabled"`
	SkipVerify bool `yaml:"skip_verify" toml:"skip_verify"`
}

type Folders struct {
	Spam string `yaml:"spam" toml:"spam"`
	Gray string `yaml:"gray" toml:"gray"`
	// Drop receives the messages with risky attachments. Empty means delete them.
	Drop string `yaml:"drop" toml:"drop"`
}

// Clean lists the folders emptied of old messages by the clean command
type Clean struct {
	Folders []string `yaml:"folders" toml:"folders"`
	Days    int      `yaml:"days" toml:"days"`
}

func newConfig() *Config {
	return &Config{}
}

// LoadFromFile loads the configuration from the file. Files ending with ".toml" are
// decoded as TOML, everything else as YAML.
func LoadFromFile(fileName string) (*Config, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Load(file, formatOf(fileName))
}

// Load reads the configuration, applies the defaults and validates it
func Load(reader io.Reader, format Format) (*Config, error) {
	config := newConfig()
	switch format {
	case FormatTOML:
		if _, err := toml.NewDecoder(reader).Decode(config); err != nil {
			return nil, fmt.Errorf("toml: %w", err)
		}
	default:
		decoder := yaml.NewDecoder(reader)
		decoder.KnownFields(true)
		if err := decoder.Decode(config); err != nil && err != io.EOF {
			return nil, fmt.Errorf("yaml: %w", err)
		}
	}
	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func formatOf(fileName string) Format {
	if strings.EqualFold(filepath.Ext(fileName), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

func (c *Config) setDefaults() {
	if c.Port == 0 {
		c.Port = session.DefaultPort
	}
	if c.Mailbox == "" {
		c.Mailbox = "INBOX"
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = runner.DefaultIdleTimeout
		if c.Exchange {
			c.IdleTimeout = runner.ExchangeIdleTimeout
		}
	}
	if c.PollInterval == 0 {
		c.PollInterval = runner.DefaultPollInterval
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = runner.DefaultRetryDelay
	}
	if c.MaxBatch == 0 {
		c.MaxBatch = session.DefaultMaxBatch
	}
	if c.StateDir == "" {
		c.StateDir = defaultStateDir()
	}
	tag := lib.ShortTag(lib.AccountTag(c.Address(), c.User))
	if c.CursorFile == "" {
		c.CursorFile = filepath.Join(c.StateDir, "cursor-"+tag)
	}
	if c.AuditFile == "" {
		c.AuditFile = filepath.Join(c.StateDir, "audit-"+tag+".db")
	}
}

func defaultStateDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "imapfilter")
}

// Validate checks the mandatory settings and compiles the rules
func (c *Config) Validate() error {
	if c.Server == "" {
		return lib.ErrMissingServer
	}
	if c.User == "" {
		return lib.ErrMissingUser
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxBatch < 1 {
		return fmt.Errorf("invalid max_batch %d", c.MaxBatch)
	}
	if c.AuthRetries < 0 {
		return fmt.Errorf("invalid auth_retries %d", c.AuthRetries)
	}
	if len(c.Clean.Folders) > 0 && c.Clean.Days < MinCleanDays {
		return fmt.Errorf("clean: days must be at least %d", MinCleanDays)
	}
	if _, err := c.RuleSet(); err != nil {
		return err
	}
	return nil
}

// Address is the "host:port" of the server
func (c *Config) Address() string {
	port := c.Port
	if port == 0 {
		port = session.DefaultPort
	}
	return fmt.Sprintf("%s:%d", c.Server, port)
}

// RuleSet compiles a new snapshot of the classification rules
func (c *Config) RuleSet() (*rules.Set, error) {
	whitelist, err := rules.Compile(c.Whitelist)
	if err != nil {
		return nil, fmt.Errorf("whitelist: %w", err)
	}
	blacklist, err := rules.Compile(c.Blacklist)
	if err != nil {
		return nil, fmt.Errorf("blacklist: %w", err)
	}
	graylist, err := rules.Compile(c.Graylist)
	if err != nil {
		return nil, fmt.Errorf("graylist: %w", err)
	}
	folders, err := rules.CompileFolders(c.FolderRules)
	if err != nil {
		return nil, fmt.Errorf("folder_rules: %w", err)
	}
	return &rules.Set{
		Whitelist:       whitelist,
		Blacklist:       blacklist,
		Graylist:        graylist,
		Folders:         folders,
		Self:            c.Me,
		SpamFolder:      c.Folders.Spam,
		GrayFolder:      c.Folders.Gray,
		DropFolder:      c.Folders.Drop,
		DropAttachments: c.DropAttachments,
	}, nil
}

// SessionConfig returns the settings of the protocol session. The password must be resolved first.
func (c *Config) SessionConfig(logger lib.Logger) session.Config {
	return session.Config{
		Host:     c.Server,
		Port:     c.Port,
		Username: c.User,
		Password: c.Password,
		Mailbox:  c.Mailbox,
		MaxBatch: c.MaxBatch,
		Dialer: &session.NetDialer{
			NoTLS:               c.TLS.Disabled,
			SkipTLSVerification: c.TLS.SkipVerify,
			Timeout:             30 * time.Second,
		},
		Logger: logger,
	}
}

// RunnerConfig returns the settings of the synchronization loop
func (c *Config) RunnerConfig(logger lib.Logger) runner.Config {
	return runner.Config{
		Mailbox:       c.Mailbox,
		IdleTimeout:   c.IdleTimeout,
		PollInterval:  c.PollInterval,
		RetryDelay:    c.RetryDelay,
		AuthRetries:   c.AuthRetries,
		CreateFolders: c.CreateFolders,
		Logger:        logger,
	}
}

// CheckedFolders lists every folder which must exist on the server
func (c *Config) CheckedFolders() []string {
	folders := make([]string, 0)
	if set, err := c.RuleSet(); err == nil {
		folders = append(folders, set.Destinations()...)
	}
	seen := make(map[string]bool, len(folders))
	for _, folder := range folders {
		seen[folder] = true
	}
	for _, folder := range c.Clean.Folders {
		if !seen[folder] {
			seen[folder] = true
			folders = append(folders, folder)
		}
	}
	return folders
}
