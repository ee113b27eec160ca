package mtc

import (
	"fmt"
	"gopkg.in/yaml.v2"
	"os"
	"regexp"
	"strings"
)

const DefaultConfigPath = "./myturn-collector.yaml"
const APIHostEnvName = "MYTURN_API_HOST"
const APIHostAWSName = "myturn_api_host"

const DefaultAPIBaseUrl = "https://api.myturn.ca.gov/public"

const DefaultHttpTimeout = 10
const DefaultMaxRetries = 2
const DefaultRetryBaseDelayMs = 500
const DefaultMaxConcurrentLocations = 8
const DefaultMaxConcurrentSlotChecks = 4
const DefaultReducerPageSize = 15

var HostPattern = regexp.MustCompile(`(?i)https?://([^/]+)`)

type Config struct {
	Debug                   bool     `yaml:"debug"`
	ApiBaseUrl              string   `yaml:"api_base_url"`
	HttpTimeout             int      `yaml:"http_timeout"`
	MaxRetries              int      `yaml:"max_retries"`
	RetryBaseDelayMs        int      `yaml:"retry_base_delay_ms"`
	MaxConcurrentLocations  int      `yaml:"max_concurrent_locations"`
	MaxConcurrentSlotChecks int      `yaml:"max_concurrent_slot_checks"`
	CompressUploads         bool     `yaml:"compress_uploads"`
	ReducerPageSize         int      `yaml:"reducer_page_size"`
	Counties                []string `yaml:"counties"`
	DestinationBucket       string   `yaml:"destination_bucket"`
	SourceBucket            string   `yaml:"source_bucket"`
	SourceBucketPrefix      string   `yaml:"source_bucket_prefix"`
}

func NewConfigDefaultPath() (*Config, error) {
	return NewConfig(DefaultConfigPath)
}

func NewConfig(configPath string) (*Config, error) {
	// Create config structure
	config := &Config{}

	// Open config file.  Lambda deployments ship no file and run on defaults.
	file, err := os.Open(configPath)
	if err == nil {
		defer file.Close()

		d := yaml.NewDecoder(file)
		if err := d.Decode(&config); err != nil {
			return nil, err
		}
	} else {
		Log.Debugf("No config file at %s, using defaults", configPath)
	}

	if config.Debug {
		Log.SetLevel("debug")
	}

	if len(config.ApiBaseUrl) == 0 {
		config.ApiBaseUrl = DefaultAPIBaseUrl
	}

	//replace host portion of api url, usually for testing
	hostOverride := os.Getenv(APIHostEnvName)
	if len(hostOverride) == 0 && HasAWSCredentials() {
		//deployments can repoint the collector without a config push
		hostOverride, err = GetAWSParameter(APIHostAWSName, false)
		if err != nil {
			Log.Debugf("API host not found in AWS parameter '%s': %v", APIHostAWSName, err)
			hostOverride = ""
		}
	}

	if len(hostOverride) > 0 {
		newApiBaseUrl, err := ReplaceHost(config.ApiBaseUrl, hostOverride)
		if err != nil {
			return nil, err
		}
		config.ApiBaseUrl = newApiBaseUrl
	}

	Log.Debugf("MyTurn API base URL: %s", config.ApiBaseUrl)

	if config.HttpTimeout <= 0 {
		config.HttpTimeout = DefaultHttpTimeout
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	} else if config.MaxRetries == 0 {
		config.MaxRetries = DefaultMaxRetries
	}

	if config.RetryBaseDelayMs <= 0 {
		config.RetryBaseDelayMs = DefaultRetryBaseDelayMs
	}

	if config.MaxConcurrentLocations <= 0 {
		config.MaxConcurrentLocations = DefaultMaxConcurrentLocations
	}

	if config.MaxConcurrentSlotChecks <= 0 {
		config.MaxConcurrentSlotChecks = DefaultMaxConcurrentSlotChecks
	}

	if config.ReducerPageSize <= 0 {
		config.ReducerPageSize = DefaultReducerPageSize
	}

	return config, nil
}

func ReplaceHost(originalUrl string, host string) (string, error) {
	matches := HostPattern.FindStringSubmatch(originalUrl)
	if len(matches) < 2 {
		return "", fmt.Errorf("Could not parse host from url: %s", originalUrl)
	}

	originalHost := matches[1]
	newUrl := strings.Replace(originalUrl, originalHost, host, 1)

	return newUrl, nil
}
