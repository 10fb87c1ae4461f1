package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	siteIDKey     = "SITE_ID"
	configPathKey = "CONFIG_PATH"
)

// configOptions holds optional configuration for LoadSiteConfigFromEnvironment.
type configOptions struct {
	keyExpander CustomFieldKeyExpander
}

// ConfigOption is a functional option for configuring LoadSiteConfigFromEnvironment.
type ConfigOption func(*configOptions)

// ConfigWithKeyExpander sets the expander applied to custom field keys.
func ConfigWithKeyExpander(expander CustomFieldKeyExpander) ConfigOption {
	return func(o *configOptions) {
		o.keyExpander = expander
	}
}

// SiteEnvVar is an environment variable holding a site's JSON settings.
type SiteEnvVar struct {
	Name   string // Env var name (e.g. "ACME_MAIN")
	Path   string // CONFIG_PATH value (e.g. "ACME/main")
	SiteID string
}

type jsonEnvVar struct {
	name   string
	values map[string]string
}

// jsonEnviron returns every environment variable whose value is a flat JSON object.
func jsonEnviron() []jsonEnvVar {
	var result []jsonEnvVar
	for _, env := range os.Environ() {
		name, value, found := strings.Cut(env, "=")
		if !found {
			continue
		}
		var m map[string]string
		// most env vars are plain strings (e.g. PATH), skip those silently
		if err := json.Unmarshal([]byte(value), &m); err != nil {
			continue
		}
		result = append(result, jsonEnvVar{name: name, values: m})
	}
	return result
}

// FindSiteEnvVar scans environment variables for a JSON value whose SITE_ID
// matches siteID. Returns the env var name and its CONFIG_PATH, or an empty
// name when nothing matches.
func FindSiteEnvVar(siteID string) (envVarName string, configPath string, err error) {
	var matches []SiteEnvVar
	for _, env := range jsonEnviron() {
		id, ok := env.values[siteIDKey]
		if !ok || id != siteID {
			continue
		}
		p, ok := env.values[configPathKey]
		if !ok || p == "" {
			return "", "", fmt.Errorf("env var %q contains %s but is missing %s", env.name, siteIDKey, configPathKey)
		}
		matches = append(matches, SiteEnvVar{Name: env.name, Path: p, SiteID: id})
	}

	if len(matches) == 0 {
		return "", "", nil
	}
	if len(matches) > 1 {
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Name
		}
		return "", "", fmt.Errorf("found multiple env vars with %s %q: %s", siteIDKey, siteID, strings.Join(names, ", "))
	}
	return matches[0].Name, matches[0].Path, nil
}

// FindAllSiteEnvVars returns one entry per env var carrying both SITE_ID and CONFIG_PATH.
func FindAllSiteEnvVars() []SiteEnvVar {
	var result []SiteEnvVar
	for _, env := range jsonEnviron() {
		p, hasPath := env.values[configPathKey]
		id, hasID := env.values[siteIDKey]
		if hasPath && hasID {
			result = append(result, SiteEnvVar{Name: env.name, Path: p, SiteID: id})
		}
	}
	return result
}

// ValidateSiteEnvVars checks that no SITE_ID is claimed twice and that every
// env var name starts with the org prefix of its CONFIG_PATH.
func ValidateSiteEnvVars() error {
	var errs []error
	seen := make(map[string]string)
	for _, env := range FindAllSiteEnvVars() {
		if existing, found := seen[env.SiteID]; found {
			errs = append(errs, fmt.Errorf("duplicate %s %q found in env vars %q and %q", siteIDKey, env.SiteID, existing, env.Name))
		} else {
			seen[env.SiteID] = env.Name
		}
		org, _, found := strings.Cut(env.Path, "/")
		if !found {
			errs = append(errs, fmt.Errorf("%s %q in env var %q must contain org directory (e.g. ORG/LABEL)", configPathKey, env.Path, env.Name))
			continue
		}
		if !strings.HasPrefix(env.Name, org+"_") {
			errs = append(errs, fmt.Errorf("env var name %q must start with org prefix %q (from %s %q)", env.Name, org+"_", configPathKey, env.Path))
		}
	}
	return errors.Join(errs...)
}

func LoadSiteConfigFromEnvironment(embeddedConfig EmbeddedConfig, siteID int, opts ...ConfigOption) (Config, error) {
	var options configOptions
	for _, opt := range opts {
		opt(&options)
	}

	var result Config
	envVarName, configPath, err := FindSiteEnvVar(strconv.Itoa(siteID))
	if err != nil {
		return result, fmt.Errorf("failed to find site env var %w", err)
	}
	if envVarName == "" {
		return result, fmt.Errorf("no env var found with %s %q", siteIDKey, strconv.Itoa(siteID))
	}

	siteConfigFile, err := embeddedConfig.MustFindSiteConfigFile(configPath)
	if err != nil {
		return result, fmt.Errorf("failed to read site config file %w", err)
	}

	requiredConfigFile, err := embeddedConfig.MustFindRequiredConfigFile()
	if err != nil {
		return result, fmt.Errorf("failed to read required config file %w", err)
	}

	defaultsConfigFile, err := embeddedConfig.MustFindDefaultsConfigFile()
	if err != nil {
		return result, fmt.Errorf("failed to read defaults config file %w", err)
	}

	compositeEnvVar := JSONCompositeEnvVar{Parent: envVarName}

	yamlConfigUnmarshaler := YAMLConfigUnmarshaler{KeyExpander: options.keyExpander}

	result, err = yamlConfigUnmarshaler.Unmarshal(
		compositeEnvVar,
		requiredConfigFile,
		defaultsConfigFile,
		siteConfigFile,
	)
	if err != nil {
		return result, fmt.Errorf("failed to load config %w", err)
	}
	if result.SiteID != siteID {
		return result, fmt.Errorf("config for %q declares site %d, expected %d", configPath, result.SiteID, siteID)
	}

	return result, nil
}
