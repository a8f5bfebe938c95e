package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	// MappingEntry pairs item tag with its container tag. Order of entries
	// in configuration determines processing order.
	MappingEntry struct {
		Item      string `yaml:"item" validate:"required"`
		Container string `yaml:"container" validate:"required"`
	}

	// ExclusionEntry describes records to be dropped: items inside Container
	// whose child element Field has trimmed text equal to one of Values.
	ExclusionEntry struct {
		Container string   `yaml:"container" validate:"required"`
		Field     string   `yaml:"field" validate:"required"`
		Values    []string `yaml:"values" validate:"required,min=1,dive,required"`
	}

	SplitConfig struct {
		FilenameAttribute     string           `yaml:"filename_attribute" validate:"required"`
		DirectoryNaming       string           `yaml:"directory_naming" validate:"oneof=item container"`
		OnCollision           string           `yaml:"on_collision" validate:"oneof=overwrite suffix skip fail"`
		FileNameTransliterate bool             `yaml:"file_name_transliterate"`
		Mappings              []MappingEntry   `yaml:"mappings" validate:"required,min=1,dive"`
		Exclusions            []ExclusionEntry `yaml:"exclusions,omitempty" validate:"dive"`
	}

	Config struct {
		Version   int            `yaml:"version" validate:"eq=1"`
		Split     SplitConfig    `yaml:"split"`
		Logging   LoggingConfig  `yaml:"logging"`
		Reporting ReporterConfig `yaml:"reporting"`
	}
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		// sanitize and validate what has been loaded
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}
