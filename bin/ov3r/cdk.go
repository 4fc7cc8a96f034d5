// Command ov3r synthesizes only the ov3r project.
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

const project = "ov3r"

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
		log.Fatal("loading catalog", zap.Error(err))
	}

	app := awscdk.NewApp(nil)
	if _, err := stacks.NewInfraStack(app, "Ov3RCdkStack", &stacks.InfraStackProps{
		StackProps: awscdk.StackProps{
			StackName: jsii.String(project + "-cdk"),
			Env:       settings.Management().CDK(),
		},
		Deps:     stacks.Deps{Settings: settings, Log: log},
		Catalog:  catalog,
		Projects: []string{project},
	}); err != nil {
		log.Fatal("composing stacks", zap.Error(err), zap.String("project", project))
	}

	app.Synth(nil)
}
