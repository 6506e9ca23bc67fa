// Package searchconfig resolves search-backend connection settings from the
// process environment. Resolution is pure: no network calls, and a missing
// configuration is a valid, represented state rather than an error.
package searchconfig

import "encoding/json"

// Config holds connection settings for the search backend.
type Config struct {
	// Enabled reports whether search support is configured at all. When
	// false the remaining fields are zero.
	Enabled bool
	// Node is the URL of the backend node.
	Node string
	// AccessKeyID and SecretKey sign requests to a managed (AWS-hosted)
	// backend. Both empty for a direct, unauthenticated node.
	AccessKeyID string
	SecretKey   string
}

// Environment variables consulted by FromEnv.
const (
	// EnvNode points directly at a backend node. Takes priority over any
	// platform service binding and never carries credentials.
	EnvNode = "ELASTICSEARCH_NODE"
	// EnvIgnore disables search support even when a node or service
	// binding is present. Used by test environments.
	EnvIgnore = "ELASTICSEARCH_IGNORE"
	// EnvServices is the platform's JSON service-binding blob.
	EnvServices = "VCAP_SERVICES"

	serviceName = "aws-elasticsearch"
)

// vcapServices models the slice of the platform binding blob we care about.
type vcapServices struct {
	AWSElasticsearch []struct {
		Credentials struct {
			URI       string `json:"uri"`
			AccessKey string `json:"access_key"`
			SecretKey string `json:"secret_key"`
		} `json:"credentials"`
	} `json:"aws-elasticsearch"`
}

// FromEnv derives a Config from an environment-variable map.
//
// A direct node URL wins; otherwise the first aws-elasticsearch service in
// the platform binding blob supplies the endpoint and signing credentials.
// Anything else (including a malformed binding blob) resolves to disabled.
func FromEnv(env map[string]string) Config {
	if env[EnvIgnore] != "" {
		return Config{}
	}

	if node := env[EnvNode]; node != "" {
		return Config{Enabled: true, Node: node}
	}

	raw := env[EnvServices]
	if raw == "" {
		return Config{}
	}

	var services vcapServices
	if err := json.Unmarshal([]byte(raw), &services); err != nil {
		return Config{}
	}
	if len(services.AWSElasticsearch) == 0 {
		return Config{}
	}

	creds := services.AWSElasticsearch[0].Credentials
	if creds.URI == "" {
		return Config{}
	}
	return Config{
		Enabled:     true,
		Node:        creds.URI,
		AccessKeyID: creds.AccessKey,
		SecretKey:   creds.SecretKey,
	}
}

// Getenv adapts a func(string) string lookup (such as os.Getenv) into the
// map form FromEnv consumes.
func Getenv(lookup func(string) string) map[string]string {
	return map[string]string{
		EnvNode:     lookup(EnvNode),
		EnvIgnore:   lookup(EnvIgnore),
		EnvServices: lookup(EnvServices),
	}
}
