package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/glog"
)

// Store backends
const (
	BackendGitHub = "github"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// TLSConfig holds TLS configuration options
type TLSConfig struct {
	Enabled      bool
	CertFile     string
	KeyFile      string
	GenerateCert bool
}

// CORSConfig holds CORS configuration options
type CORSConfig struct {
	Enabled          bool
	AllowOrigins     string
	AllowMethods     string
	AllowHeaders     string
	AllowCredentials bool
	MaxAge           int
}

// StoreConfig describes where the content document is committed
type StoreConfig struct {
	Backend        string
	APIURL         string
	Token          string // only ever read from the environment
	Repo           string // owner/repo
	Branch         string
	Path           string // document path inside the repository
	Root           string // checkout directory for the file backend
	Timeout        time.Duration
	InsecureVerify bool
}

// PublishConfig holds publish pipeline options
type PublishConfig struct {
	DefaultMessage string
	Timeout        time.Duration
	DeployHookURL  string
}

// AdminConfig holds admin surface authentication options
type AdminConfig struct {
	Token         string
	SessionSecret string
	SessionTTL    time.Duration
	InsecureOpen  bool
}

// PageConfig maps a route to a legacy HTML file in the site directory
type PageConfig struct {
	Route  string
	Source string
	Embeds []string
}

// BlogConfig holds blog renderer options
type BlogConfig struct {
	Index       string
	TitleSuffix string
}

// Config holds the application configuration
type Config struct {
	SiteDir           string
	Port              int
	ReadHeaderTimeout time.Duration
	ProxyURL          *url.URL
	InsecureProxy     bool
	Store             StoreConfig
	Publish           PublishConfig
	Admin             AdminConfig
	Pages             []PageConfig
	Blog              BlogConfig
	TLS               TLSConfig
	CORS              CORSConfig
}

// PublicDir is the directory static files and the public content copy are served from
func (c *Config) PublicDir() string {
	return filepath.Join(c.SiteDir, "public")
}

// ParseFlags parses command line flags and merges with config file and environment
func ParseFlags() (*Config, error) {
	// Define flags
	configFlag := flag.String("config", "config.yml", "Path to configuration file")
	generateConfigFlag := flag.Bool("generate-config", false, "Generate a default configuration file")
	configFilePathFlag := flag.String("config-path", "config.yml", "Path where config file should be generated")
	envFileFlag := flag.String("env-file", ".env", "Path to a .env file with secrets")

	// Simple flags for overriding config file
	dirFlag := flag.String("d", "", "Site directory containing legacy pages and public/ (overrides config)")
	portFlag := flag.Int("p", 0, "Port to listen on (overrides config)")

	// Parse flags
	flag.Parse()

	// Handle config file generation
	if *generateConfigFlag {
		glog.Infof("Generating default configuration file at %s", *configFilePathFlag)
		if err := SaveDefaultConfig(*configFilePathFlag); err != nil {
			return nil, err
		}
		glog.Infof("Configuration file generated successfully")
	}

	if err := LoadDotEnv(*envFileFlag); err != nil {
		return nil, fmt.Errorf("error loading %s: %w", *envFileFlag, err)
	}

	// Load configuration from file
	config, err := LoadConfig(*configFlag)
	if err != nil {
		glog.Warningf("Could not load config file: %v", err)
		glog.Warningf("Using default configuration")

		// If config file doesn't exist, use default config
		config, _ = LoadConfig("")
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}

	// Override with command line flags if provided
	if *dirFlag != "" {
		config.SiteDir = *dirFlag
		if config.Store.Backend == BackendFile {
			config.Store.Root = *dirFlag
		}
	}

	if *portFlag != 0 {
		config.Port = *portFlag
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects configurations the server cannot run with. Missing forge
// credentials are not an error here: publishing reports them per request.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}

	switch c.Store.Backend {
	case BackendGitHub, BackendFile, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q (supported: github, file, memory)", c.Store.Backend))
	}

	if c.Store.Branch == "" {
		errs = append(errs, errors.New("store branch is required"))
	}

	if err := ValidateDocumentPath(c.Store.Path); err != nil {
		errs = append(errs, err)
	}

	if c.Store.Repo != "" {
		if err := ValidateRepo(c.Store.Repo); err != nil {
			errs = append(errs, err)
		}
	}

	for _, page := range c.Pages {
		if !strings.HasPrefix(page.Route, "/") {
			errs = append(errs, fmt.Errorf("page route %q must start with /", page.Route))
		}
		if page.Source == "" {
			errs = append(errs, fmt.Errorf("page route %q has no source", page.Route))
		}
	}

	return errors.Join(errs...)
}

// ValidateRepo checks the owner/repo form of a repository identifier
func ValidateRepo(repo string) error {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("invalid repository %q: expected owner/repo", repo)
	}
	return nil
}

// ValidateDocumentPath checks that a document path is relative and stays inside the repository
func ValidateDocumentPath(p string) error {
	if p == "" {
		return errors.New("document path is required")
	}
	if strings.HasPrefix(p, "/") {
		return fmt.Errorf("document path %q must be relative to the repository root", p)
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." || part == "" {
			return fmt.Errorf("invalid document path %q", p)
		}
	}
	return nil
}
