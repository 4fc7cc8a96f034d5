package config

type WhitelistEntry struct {
	CIDR        string
	Description string
}

var Whitelist = []WhitelistEntry{
	{CIDR: "10.0.0.0/24", Description: "mgmt us-east-1 vpc"},
	{CIDR: "10.1.0.0/16", Description: "dev us-east-1 vpc"},
	{CIDR: "10.2.0.0/16", Description: "prod us-east-1 vpc"},
	{CIDR: "10.3.0.0/16", Description: "dev us-west-1 vpc"},
	{CIDR: "10.4.0.0/16", Description: "prod us-west-1 vpc"},
	{CIDR: "10.5.0.0/24", Description: "prod us-west-1 vpc"},
}
