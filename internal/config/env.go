package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// ApplyEnv overlays environment variables on the configuration. Secrets only
// ever come from here.
func ApplyEnv(config *Config) error {
	setString(&config.Store.Token, os.Getenv("GITHUB_TOKEN"))
	setString(&config.Store.Repo, os.Getenv("GITHUB_REPO"))
	setString(&config.Store.Branch, os.Getenv("GITHUB_BRANCH"))
	setString(&config.Store.APIURL, os.Getenv("GITHUB_API_URL"))
	setString(&config.Store.Path, os.Getenv("CONTENT_PATH"))
	setString(&config.Store.Backend, os.Getenv("STORE_BACKEND"))

	setString(&config.Admin.Token, os.Getenv("SITE_ADMIN_TOKEN"))
	setString(&config.Admin.SessionSecret, os.Getenv("SITE_SESSION_SECRET"))

	if hook := os.Getenv("DEPLOY_HOOK_URL"); hook != "" {
		if _, err := url.ParseRequestURI(hook); err != nil {
			return fmt.Errorf("invalid DEPLOY_HOOK_URL: %w", err)
		}
		config.Publish.DeployHookURL = hook
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		config.Port = p
	}

	return nil
}

// LoadDotEnv loads a .env file without overriding variables already present
// in the environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// DefaultSiteURL is where contentctl looks for the server when SITE_URL is unset
const DefaultSiteURL = "http://localhost:3000"

// ClientSettings tell contentctl how to reach a running server
type ClientSettings struct {
	URL   string
	Token string
}

// LoadClientSettings reads SITE_URL and SITE_ADMIN_TOKEN after loading envFile
func LoadClientSettings(envFile string) (*ClientSettings, error) {
	if err := LoadDotEnv(envFile); err != nil {
		return nil, fmt.Errorf("error loading %s: %w", envFile, err)
	}

	settings := &ClientSettings{URL: DefaultSiteURL}
	setString(&settings.URL, os.Getenv("SITE_URL"))
	settings.Token = os.Getenv("SITE_ADMIN_TOKEN")

	if _, err := url.ParseRequestURI(settings.URL); err != nil {
		return nil, fmt.Errorf("invalid SITE_URL: %w", err)
	}
	return settings, nil
}
