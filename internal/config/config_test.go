package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Master: "prod-master",
		Slaves: []string{"edge-1", "mirror"},
		Endpoints: map[string]EndpointConfig{
			"prod-master": {URL: "https://glance.example.com", Username: "admin", Password: "secret"},
			"edge-1":      {URL: "https://edge1.example.com", Username: "admin", Password: "secret"},
			"mirror":      {Type: TypeS3, Bucket: "image-mirror", Region: "us-east-1"},
		},
		StagingDir: "/tmp/glance-sync",
		HistoryDB:  ".glance-sync/history.db",
	}
}

func TestValidate_AcceptsValidConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		desc    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			desc:    "missing master",
			mutate:  func(c *Config) { c.Master = "" },
			wantErr: "master endpoint",
		},
		{
			desc:    "no slaves",
			mutate:  func(c *Config) { c.Slaves = nil },
			wantErr: "at least one slave",
		},
		{
			desc:    "undefined master",
			mutate:  func(c *Config) { c.Master = "ghost" },
			wantErr: `"ghost"`,
		},
		{
			desc:    "undefined slave",
			mutate:  func(c *Config) { c.Slaves = []string{"ghost"} },
			wantErr: `"ghost"`,
		},
		{
			desc:    "master doubling as slave",
			mutate:  func(c *Config) { c.Slaves = append(c.Slaves, "prod-master") },
			wantErr: "both master and slave",
		},
		{
			desc:    "bad pattern",
			mutate:  func(c *Config) { c.Pattern = "ubuntu-(" },
			wantErr: "invalid image pattern",
		},
		{
			desc:    "empty staging dir",
			mutate:  func(c *Config) { c.StagingDir = "" },
			wantErr: "staging-dir",
		},
		{
			desc: "glance endpoint without credentials",
			mutate: func(c *Config) {
				ep := c.Endpoints["edge-1"]
				ep.Password = ""
				c.Endpoints["edge-1"] = ep
			},
			wantErr: "username and password",
		},
		{
			desc: "s3 endpoint without bucket",
			mutate: func(c *Config) {
				ep := c.Endpoints["mirror"]
				ep.Bucket = ""
				c.Endpoints["mirror"] = ep
			},
			wantErr: "bucket is required",
		},
		{
			desc: "unknown endpoint type",
			mutate: func(c *Config) {
				ep := c.Endpoints["mirror"]
				ep.Type = "ftp"
				c.Endpoints["mirror"] = ep
			},
			wantErr: "unknown endpoint type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEndpointConfig_ImageURL(t *testing.T) {
	tests := []struct {
		desc string
		ep   EndpointConfig
		want string
	}{
		{
			desc: "defaults applied",
			ep:   EndpointConfig{URL: "https://glance.example.com"},
			want: "https://glance.example.com:9292/v2",
		},
		{
			desc: "explicit port and version",
			ep:   EndpointConfig{URL: "https://glance.example.com/", Port: 9393, APIVersion: "v2.1"},
			want: "https://glance.example.com:9393/v2.1",
		},
		{
			desc: "no url",
			ep:   EndpointConfig{},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ep.ImageURL())
		})
	}
}

func TestEndpointConfig_AuthEndpoint(t *testing.T) {
	// Auth host falls back to the service host, with Keystone defaults.
	ep := EndpointConfig{URL: "https://glance.example.com"}
	assert.Equal(t, "https://glance.example.com:5000/v3", ep.AuthEndpoint())

	ep = EndpointConfig{URL: "https://glance.example.com", AuthURL: "https://keystone.example.com", AuthPort: 443, AuthVersion: "v3"}
	assert.Equal(t, "https://keystone.example.com:443/v3", ep.AuthEndpoint())
}
