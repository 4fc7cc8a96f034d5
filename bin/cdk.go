package main

import (
	"os"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
	"github.com/ov3r/infra-aws-base-cdk/config"
	"github.com/ov3r/infra-aws-base-cdk/properties"
	"github.com/ov3r/infra-aws-base-cdk/stacks"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

func main() {
	defer jsii.Close()

	level, _ := lo.Coalesce(os.Getenv("LOG_LEVEL"), "info")
	log, err := config.NewLogger(level)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	settings, err := config.Load(log)
	if err != nil {
		log.Fatal("loading settings", zap.Error(err))
	}

	catalog, err := properties.Load(settings.CatalogFile)
	if err != nil {
		log.Fatal("loading catalog", zap.Error(err), zap.String("file", settings.CatalogFile))
	}

	app := awscdk.NewApp(nil)
	_, err = stacks.NewInfraStack(app, "InfraAwsBaseCdkStack", &stacks.InfraStackProps{
		StackProps: awscdk.StackProps{
			StackName: jsii.String("infra-aws-base-cdk"),
			Env:       settings.Management().CDK(),
		},
		Deps:    stacks.Deps{Settings: settings, Log: log},
		Catalog: catalog,
	})
	if err != nil {
		log.Fatal("composing stacks", zap.Error(err))
	}

	app.Synth(nil)
}
