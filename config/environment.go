package config

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
	"github.com/pkg/errors"
)

type EnvKey string

const (
	Dev  EnvKey = "dev"
	Prod EnvKey = "prod"
	Mgmt EnvKey = "mgmt"
)

// Environment is one row of the static env -> account/region table.
type Environment struct {
	Key     EnvKey
	Account string
	Region  string
	VPC     string
}

func (e Environment) Name() string {
	return string(e.Key)
}

func (e Environment) CDK() *awscdk.Environment {
	return &awscdk.Environment{
		Account: jsii.String(e.Account),
		Region:  jsii.String(e.Region),
	}
}

// Environments returns the closed set of deployable environments.
func (s *Settings) Environments() map[EnvKey]Environment {
	return map[EnvKey]Environment{
		Dev:  {Key: Dev, Account: s.DevAccount, Region: s.DefaultRegion, VPC: s.DevVPC},
		Prod: {Key: Prod, Account: s.ProdAccount, Region: s.DefaultRegion, VPC: s.ProdVPC},
		Mgmt: {Key: Mgmt, Account: s.MgmtAccount, Region: s.DefaultRegion, VPC: s.MgmtVPC},
	}
}

// Lookup fails for any name outside the environment table.
func (s *Settings) Lookup(name string) (Environment, error) {
	e, ok := s.Environments()[EnvKey(name)]
	if !ok {
		return Environment{}, errors.Errorf("invalid environment: %s", name)
	}
	return e, nil
}

func (s *Settings) Management() Environment {
	return s.Environments()[Mgmt]
}
