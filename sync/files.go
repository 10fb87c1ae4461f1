package sync

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
)

type ConfigFile struct {
	Name   string
	Reader io.Reader
	Length int
}

// EmbeddedConfig locates layered site config files under Root:
// required.yaml, defaults.yaml and sites/<ORG>/<LABEL>*.yaml.
type EmbeddedConfig struct {
	Root  string
	Files EmbeddedFS
}

type EmbeddedFS interface {
	Open(name string) (fs.File, error)
	ReadDir(name string) ([]fs.DirEntry, error)
	ReadFile(name string) ([]byte, error)
}

func (ec EmbeddedConfig) MustFindRootConfigFile(filename string) (ConfigFile, error) {
	var result ConfigFile
	name := path.Join(ec.Root, filename)
	contents, err := ec.Files.ReadFile(name)
	if err == nil {
		result.Name = name
		result.Reader = bytes.NewReader(contents)
		result.Length = len(contents)
	}
	return result, err
}

func (ec EmbeddedConfig) MustFindRequiredConfigFile() (ConfigFile, error) {
	return ec.MustFindRootConfigFile("required.yaml")
}

func (ec EmbeddedConfig) MustFindDefaultsConfigFile() (ConfigFile, error) {
	return ec.MustFindRootConfigFile("defaults.yaml")
}

// MustFindSiteConfigFile finds the single site config file for a CONFIG_PATH
// of the form ORG/LABEL, matching files in sites/ORG whose name starts with LABEL.
func (ec EmbeddedConfig) MustFindSiteConfigFile(configPath string) (ConfigFile, error) {
	var result ConfigFile
	org, label, found := strings.Cut(configPath, "/")
	if !found || org == "" || label == "" {
		return result, fmt.Errorf("config path %q must be of the form ORG/LABEL", configPath)
	}
	dir := path.Join(ec.Root, "sites", org)
	files, err := ec.Files.ReadDir(dir)
	if err != nil {
		return result, err
	}
	for _, file := range files {
		p := file.Name()
		if file.IsDir() || !strings.HasPrefix(p, label) {
			continue
		}
		// multiple matches are not supported - guard against misconfiguration
		if result.Name != "" {
			return result, fmt.Errorf("found multiple config files with prefix: %s in dir: %s", label, dir)
		}
		p = path.Join(dir, p)
		var contents []byte
		contents, err = ec.Files.ReadFile(p)
		if err != nil {
			return result, err
		}
		result.Name = p
		result.Reader = bytes.NewReader(contents)
		result.Length = len(contents)
	}
	if result.Name == "" {
		return result, fmt.Errorf("failed to find config file with prefix: %s in dir: %s", label, dir)
	}
	return result, nil
}

// SiteLabel returns the label portion of a CONFIG_PATH.
func SiteLabel(configPath string) string {
	if i := strings.LastIndex(configPath, "/"); i >= 0 {
		return configPath[i+1:]
	}
	return configPath
}
