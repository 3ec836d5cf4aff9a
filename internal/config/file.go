package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig represents the structure of the configuration file. Secrets
// (forge token, admin token, session secret) are not part of it; they are
// read from the environment only.
type FileConfig struct {
	Server struct {
		Port              int    `yaml:"port"`
		SiteDir           string `yaml:"site_dir"`
		ReadHeaderTimeout string `yaml:"read_header_timeout"`
	} `yaml:"server"`

	Proxy struct {
		URL            string `yaml:"url"`
		InsecureVerify bool   `yaml:"insecure_verify"`
	} `yaml:"proxy"`

	Store struct {
		Backend        string `yaml:"backend"`
		APIURL         string `yaml:"api_url"`
		Repo           string `yaml:"repo"`
		Branch         string `yaml:"branch"`
		Path           string `yaml:"path"`
		Root           string `yaml:"root"`
		Timeout        string `yaml:"timeout"`
		InsecureVerify bool   `yaml:"insecure_verify"`
	} `yaml:"store"`

	Publish struct {
		DefaultMessage string `yaml:"default_message"`
		Timeout        string `yaml:"timeout"`
		DeployHookURL  string `yaml:"deploy_hook_url"`
	} `yaml:"publish"`

	Admin struct {
		SessionTTL   string `yaml:"session_ttl"`
		InsecureOpen bool   `yaml:"insecure_open"`
	} `yaml:"admin"`

	Pages []struct {
		Route  string   `yaml:"route"`
		Source string   `yaml:"source"`
		Embeds []string `yaml:"embeds,omitempty"`
	} `yaml:"pages"`

	Blog struct {
		Index       string `yaml:"index"`
		TitleSuffix string `yaml:"title_suffix"`
	} `yaml:"blog"`

	TLS struct {
		Enabled      bool   `yaml:"enabled"`
		CertFile     string `yaml:"cert_file"`
		KeyFile      string `yaml:"key_file"`
		GenerateCert bool   `yaml:"generate_cert"`
	} `yaml:"tls"`

	CORS struct {
		Enabled          bool   `yaml:"enabled"`
		AllowOrigins     string `yaml:"allow_origins"`
		AllowMethods     string `yaml:"allow_methods"`
		AllowHeaders     string `yaml:"allow_headers"`
		AllowCredentials bool   `yaml:"allow_credentials"`
		MaxAge           int    `yaml:"max_age"`
	} `yaml:"cors"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		SiteDir:           ".",
		Port:              3000,
		ReadHeaderTimeout: 10 * time.Second,
		Store: StoreConfig{
			Backend: BackendGitHub,
			APIURL:  "https://api.github.com",
			Branch:  "main",
			Path:    "public/content.json",
			Root:    ".",
			Timeout: 15 * time.Second,
		},
		Publish: PublishConfig{
			DefaultMessage: "Update content.json",
			Timeout:        30 * time.Second,
		},
		Admin: AdminConfig{
			SessionTTL: 12 * time.Hour,
		},
		Pages: []PageConfig{
			{Route: "/", Source: "index.html", Embeds: []string{"estimator/index.html"}},
			{Route: "/contact", Source: "contact/index.html"},
			{Route: "/estimator", Source: "estimator/index.html"},
			{Route: "/page-1", Source: "page(1).html"},
			{Route: "/project-showcase", Source: "project-showcase/index.html"},
		},
		Blog: BlogConfig{
			Index:       "blog/posts.json",
			TitleSuffix: "Vanilla & Somethin",
		},
		TLS: TLSConfig{
			Enabled:      false,
			CertFile:     "cert/cert.pem",
			KeyFile:      "cert/key.pem",
			GenerateCert: false,
		},
		CORS: CORSConfig{
			Enabled:          false,
			AllowOrigins:     "*",
			AllowMethods:     "GET, POST, OPTIONS",
			AllowHeaders:     "Content-Type, Authorization, Subscribe, Version, Parents",
			AllowCredentials: false,
			MaxAge:           86400,
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filePath string) (*Config, error) {
	config := Default()

	// If no config file specified, return default config
	if filePath == "" {
		return config, nil
	}

	// Read config file
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	var fileConfig FileConfig
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Server settings
	if fileConfig.Server.Port != 0 {
		config.Port = fileConfig.Server.Port
	}
	if fileConfig.Server.SiteDir != "" {
		config.SiteDir = fileConfig.Server.SiteDir
		config.Store.Root = fileConfig.Server.SiteDir
	}
	if err := setDuration(&config.ReadHeaderTimeout, "server.read_header_timeout", fileConfig.Server.ReadHeaderTimeout); err != nil {
		return nil, err
	}

	// Proxy settings
	if fileConfig.Proxy.URL != "" {
		proxyURL, err := url.Parse(fileConfig.Proxy.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		config.ProxyURL = proxyURL
		config.InsecureProxy = fileConfig.Proxy.InsecureVerify
	}

	// Store settings
	setString(&config.Store.Backend, fileConfig.Store.Backend)
	setString(&config.Store.APIURL, fileConfig.Store.APIURL)
	setString(&config.Store.Repo, fileConfig.Store.Repo)
	setString(&config.Store.Branch, fileConfig.Store.Branch)
	setString(&config.Store.Path, fileConfig.Store.Path)
	setString(&config.Store.Root, fileConfig.Store.Root)
	if err := setDuration(&config.Store.Timeout, "store.timeout", fileConfig.Store.Timeout); err != nil {
		return nil, err
	}
	config.Store.InsecureVerify = fileConfig.Store.InsecureVerify

	// Publish settings
	setString(&config.Publish.DefaultMessage, fileConfig.Publish.DefaultMessage)
	setString(&config.Publish.DeployHookURL, fileConfig.Publish.DeployHookURL)
	if err := setDuration(&config.Publish.Timeout, "publish.timeout", fileConfig.Publish.Timeout); err != nil {
		return nil, err
	}

	// Admin settings
	if err := setDuration(&config.Admin.SessionTTL, "admin.session_ttl", fileConfig.Admin.SessionTTL); err != nil {
		return nil, err
	}
	config.Admin.InsecureOpen = fileConfig.Admin.InsecureOpen

	// Pages replace the defaults as a whole
	if len(fileConfig.Pages) > 0 {
		config.Pages = make([]PageConfig, 0, len(fileConfig.Pages))
		for _, page := range fileConfig.Pages {
			config.Pages = append(config.Pages, PageConfig{
				Route:  page.Route,
				Source: page.Source,
				Embeds: page.Embeds,
			})
		}
	}

	// Blog settings
	setString(&config.Blog.Index, fileConfig.Blog.Index)
	setString(&config.Blog.TitleSuffix, fileConfig.Blog.TitleSuffix)

	// TLS settings
	config.TLS.Enabled = fileConfig.TLS.Enabled
	setString(&config.TLS.CertFile, fileConfig.TLS.CertFile)
	setString(&config.TLS.KeyFile, fileConfig.TLS.KeyFile)
	config.TLS.GenerateCert = fileConfig.TLS.GenerateCert

	// CORS settings
	config.CORS.Enabled = fileConfig.CORS.Enabled
	setString(&config.CORS.AllowOrigins, fileConfig.CORS.AllowOrigins)
	setString(&config.CORS.AllowMethods, fileConfig.CORS.AllowMethods)
	setString(&config.CORS.AllowHeaders, fileConfig.CORS.AllowHeaders)
	config.CORS.AllowCredentials = fileConfig.CORS.AllowCredentials
	if fileConfig.CORS.MaxAge != 0 {
		config.CORS.MaxAge = fileConfig.CORS.MaxAge
	}

	return config, nil
}

// SaveDefaultConfig saves a default configuration file
func SaveDefaultConfig(filePath string) error {
	defaults := Default()
	var fileConfig FileConfig

	// Server settings
	fileConfig.Server.Port = defaults.Port
	fileConfig.Server.SiteDir = defaults.SiteDir
	fileConfig.Server.ReadHeaderTimeout = defaults.ReadHeaderTimeout.String()

	// Store settings
	fileConfig.Store.Backend = defaults.Store.Backend
	fileConfig.Store.APIURL = defaults.Store.APIURL
	fileConfig.Store.Branch = defaults.Store.Branch
	fileConfig.Store.Path = defaults.Store.Path
	fileConfig.Store.Root = defaults.Store.Root
	fileConfig.Store.Timeout = defaults.Store.Timeout.String()

	// Publish settings
	fileConfig.Publish.DefaultMessage = defaults.Publish.DefaultMessage
	fileConfig.Publish.Timeout = defaults.Publish.Timeout.String()

	// Admin settings
	fileConfig.Admin.SessionTTL = defaults.Admin.SessionTTL.String()

	for _, page := range defaults.Pages {
		fileConfig.Pages = append(fileConfig.Pages, struct {
			Route  string   `yaml:"route"`
			Source string   `yaml:"source"`
			Embeds []string `yaml:"embeds,omitempty"`
		}{Route: page.Route, Source: page.Source, Embeds: page.Embeds})
	}

	fileConfig.Blog.Index = defaults.Blog.Index
	fileConfig.Blog.TitleSuffix = defaults.Blog.TitleSuffix

	// TLS settings
	fileConfig.TLS.CertFile = defaults.TLS.CertFile
	fileConfig.TLS.KeyFile = defaults.TLS.KeyFile

	// CORS settings
	fileConfig.CORS.AllowOrigins = defaults.CORS.AllowOrigins
	fileConfig.CORS.AllowMethods = defaults.CORS.AllowMethods
	fileConfig.CORS.AllowHeaders = defaults.CORS.AllowHeaders
	fileConfig.CORS.MaxAge = defaults.CORS.MaxAge

	// Marshal to YAML
	data, err := yaml.Marshal(fileConfig)
	if err != nil {
		return fmt.Errorf("error creating default config: %w", err)
	}

	// Add helpful comments
	yamlWithComments := "# Site server configuration\n" +
		"# Secrets are read from the environment (or .env):\n" +
		"#   GITHUB_TOKEN, SITE_ADMIN_TOKEN, SITE_SESSION_SECRET\n\n" +
		string(data)

	// Write to file
	if err := os.WriteFile(filePath, []byte(yamlWithComments), 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setDuration(dst *time.Duration, key, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
