package stacks

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/ov3r/infra-aws-base-cdk/lib/naming"
)

// maxBucketName is the S3 bucket name limit.
const maxBucketName = 63

// createArtifactBucket holds the pipeline artifacts. With a base name the
// bucket is called {base}-{prefix}, otherwise CloudFormation names it.
func createArtifactBucket(scope constructs.Construct, prefix, base string) awss3.Bucket {
	var name *string
	if base != "" {
		name = jsii.String(ArtifactBucketName(base, prefix))
	}
	return awss3.NewBucket(scope, jsii.String(prefix+"-artifact-bucket"), &awss3.BucketProps{
		BucketName:        name,
		AutoDeleteObjects: jsii.Bool(true),
		RemovalPolicy:     awscdk.RemovalPolicy_DESTROY,
		Encryption:        awss3.BucketEncryption_S3_MANAGED,
		BlockPublicAccess: awss3.BlockPublicAccess_BLOCK_ALL(),
		EnforceSSL:        jsii.Bool(true),
		Versioned:         jsii.Bool(true),
	})
}

// ArtifactBucketName is the artifact bucket of one service pipeline.
func ArtifactBucketName(base, prefix string) string {
	return naming.Truncate(base+"-"+prefix, maxBucketName)
}
