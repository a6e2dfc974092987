// Package config loads client options from a YAML file, merging only the
// fields the file actually sets over the compiled-in defaults.
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opd-ai/fedchat"
)

// FileConfig is the YAML shape. Pointer fields distinguish "absent" from
// the zero value so a file can deliberately set something to zero.
type FileConfig struct {
	Chat ChatConfig `yaml:"chat"`
}

type ChatConfig struct {
	GroupDomain        string        `yaml:"groupDomain"`
	PushService        string        `yaml:"pushService"`
	DefaultGroups      []string      `yaml:"defaultGroups"`
	MessageLimit       *int          `yaml:"messageLimit"`
	PageSize           *int          `yaml:"pageSize"`
	LivenessTimeout    time.Duration `yaml:"livenessTimeout"`
	RequestTimeout     time.Duration `yaml:"requestTimeout"`
	ResumePollInterval time.Duration `yaml:"resumePollInterval"`
}

// LoadFromPath reads options from the first readable candidate path.
// An empty configPath falls back to the conventional locations; a
// missing or unparsable file yields the defaults.
func LoadFromPath(configPath string) *fedchat.Options {
	opts := fedchat.NewOptions()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			"configs/fedchat.yaml",
			"fedchat.yaml",
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var parsed FileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}

		Merge(opts, parsed.Chat)
		ApplyEnvOverrides(opts)
		return opts
	}

	ApplyEnvOverrides(opts)
	return opts
}

// Merge applies the fields src sets onto dst, leaving the rest alone.
func Merge(dst *fedchat.Options, src ChatConfig) {
	if src.GroupDomain != "" {
		dst.GroupDomain = src.GroupDomain
	}
	if src.PushService != "" {
		dst.PushService = src.PushService
	}
	if src.DefaultGroups != nil {
		dst.DefaultGroups = src.DefaultGroups
	}
	if src.MessageLimit != nil {
		dst.MessageLimit = *src.MessageLimit
	}
	if src.PageSize != nil {
		dst.PageSize = *src.PageSize
	}
	if src.LivenessTimeout != 0 {
		dst.LivenessTimeout = src.LivenessTimeout
	}
	if src.RequestTimeout != 0 {
		dst.RequestTimeout = src.RequestTimeout
	}
	if src.ResumePollInterval != 0 {
		dst.ResumePollInterval = src.ResumePollInterval
	}
}

// ApplyEnvOverrides applies the environment variables that may override
// file and default values.
func ApplyEnvOverrides(opts *fedchat.Options) {
	if domain := strings.TrimSpace(os.Getenv("FEDCHAT_GROUP_DOMAIN")); domain != "" {
		opts.GroupDomain = domain
	}
	if service := strings.TrimSpace(os.Getenv("FEDCHAT_PUSH_SERVICE")); service != "" {
		opts.PushService = service
	}
}
