package config

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLoadFrom(t *testing.T) {
	s, err := LoadFrom(map[string]string{
		"CDK_DEFAULT_ACCOUNT":         "111111111111",
		"CDK_DEV_ACCOUNT":             "222222222222",
		"CDK_PROD_ACCOUNT":            "333333333333",
		"DEV_VPC":                     "vpc-dev",
		"PROD_VPC":                    "vpc-prod",
		"MGMT_VPC":                    "vpc-mgmt",
		"CDK_CODESTAR_CONNECTION_ARN": "arn:aws:codeconnections:us-east-1:111111111111:connection/abc",
		"GITHUB_SOURCE_OWNER":         "ov3r",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.Equal(t, "us-east-1", s.DefaultRegion)
	require.Equal(t, "us-east-1", s.PrimaryRegion)
	require.Empty(t, s.SecondaryRegion)
	require.Equal(t, "info", s.LogLevel)
	require.Equal(t, "vpc-mgmt", s.MgmtVPC)
}

func TestLoadFromDefersMissingValues(t *testing.T) {
	s, err := LoadFrom(map[string]string{
		"CDK_DEFAULT_ACCOUNT": "111111111111",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.Equal(t, "111111111111", s.MgmtAccount)
	require.Equal(t, "MISSING_CDK_DEV_ACCOUNT", s.DevAccount)
	require.Equal(t, "MISSING_DEV_VPC", s.DevVPC)
	require.Equal(t, Placeholder("GITHUB_SOURCE_OWNER"), s.GithubOwner)
	// optional values stay empty
	require.Empty(t, s.ArtifactBucketName)
}

func TestLookup(t *testing.T) {
	s := &Settings{
		MgmtAccount:   "111111111111",
		DevAccount:    "222222222222",
		ProdAccount:   "333333333333",
		DefaultRegion: "us-east-1",
		DevVPC:        "vpc-dev",
	}

	tests := []struct {
		name    string
		account string
		wantErr bool
	}{
		{name: "dev", account: "222222222222"},
		{name: "prod", account: "333333333333"},
		{name: "mgmt", account: "111111111111"},
		{name: "qa", wantErr: true},
		{name: "", wantErr: true},
		{name: "DEV", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := s.Lookup(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.account, e.Account)
			require.Equal(t, "us-east-1", e.Region)
			require.Equal(t, tt.name, e.Name())
		})
	}

	dev, err := s.Lookup("dev")
	require.NoError(t, err)
	require.Equal(t, "vpc-dev", dev.VPC)
	require.Equal(t, "222222222222", *dev.CDK().Account)
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger("debug")
	require.NoError(t, err)
	require.NotNil(t, log)

	_, err = NewLogger("loud")
	require.Error(t, err)
}
