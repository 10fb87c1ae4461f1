package sync

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/config"
)

type Config struct {
	SiteID       int `yaml:"siteId" validate:"gt=0"`
	API          APISettings
	Log          LogSettings
	Connector    ConnectorSettings
	MailingLists []MailingList `yaml:"mailingLists" validate:"dive"`
}

type APISettings struct {
	Key      string `yaml:"key" validate:"required"`
	ClientID string `yaml:"clientId"`
	// Endpoint defaults to DefaultCampaignMonitorEndpoint.
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`
}

type LogSettings struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

type ConnectorSettings struct {
	Breaker BreakerSettings `yaml:"breaker"`
}

// MailingList returns the configured rule with the given list id.
func (c Config) MailingList(listID string) (MailingList, bool) {
	for _, l := range c.MailingLists {
		if l.ListID == listID {
			return l, true
		}
	}
	return MailingList{}, false
}

type ConfigUnmarshaler interface {
	Unmarshal(compev CompositeEnvVar, sources ...ConfigFile) (Config, error)
}

type CompositeEnvVar interface {
	LookupEnv(child string) (string, bool)
}

type JSONCompositeEnvVar struct {
	Parent string
}

func (c JSONCompositeEnvVar) LookupEnv(child string) (string, bool) {
	if c.Parent != "" {
		s := os.Getenv(c.Parent)
		if s != "" {
			m := make(map[string]string)
			err := json.Unmarshal([]byte(s), &m)
			if err == nil {
				v, exists := m[child]
				return v, exists
			}
		}
	}
	return "", false
}

type YAMLConfigUnmarshaler struct {
	KeyExpander CustomFieldKeyExpander
}

// CustomFieldKeyExpander normalizes the remote keys of custom field mappings.
type CustomFieldKeyExpander interface {
	ExpandCustomFieldKeys(lists []MailingList) error
}

func (u YAMLConfigUnmarshaler) Unmarshal(compev CompositeEnvVar, sources ...ConfigFile) (Config, error) {
	var result Config
	var options []config.YAMLOption
	for _, s := range sources {
		if s.Length > 0 {
			options = append(options, config.Source(s.Reader))
		}
	}
	options = append(options, config.Expand(compev.LookupEnv))
	yaml, err := config.NewYAML(options...)
	if err != nil {
		return result, fmt.Errorf("failed to read yaml config %w", err)
	}
	readError := func(key string, cause error) error {
		return fmt.Errorf("failed to read '%s' from yaml config %w", key, cause)
	}
	key := "siteId"
	err = yaml.Get(key).Populate(&result.SiteID)
	if err != nil {
		return result, readError(key, err)
	}
	key = "api"
	err = yaml.Get(key).Populate(&result.API)
	if err != nil {
		return result, readError(key, err)
	}
	key = "log"
	if yaml.Get(key).HasValue() {
		err = yaml.Get(key).Populate(&result.Log)
		if err != nil {
			return result, readError(key, err)
		}
	}
	key = "connector"
	if yaml.Get(key).HasValue() {
		err = yaml.Get(key).Populate(&result.Connector)
		if err != nil {
			return result, readError(key, err)
		}
	}
	key = "mailingLists"
	if yaml.Get(key).HasValue() {
		err = yaml.Get(key).Populate(&result.MailingLists)
		if err != nil {
			return result, readError(key, err)
		}
	}

	if u.KeyExpander != nil {
		err = u.KeyExpander.ExpandCustomFieldKeys(result.MailingLists)
		if err != nil {
			return result, err
		}
	}

	err = validator.New().Struct(result)
	if err != nil {
		return result, fmt.Errorf("invalid config %w", err)
	}

	return result, nil
}
