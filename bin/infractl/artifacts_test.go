package main

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"
)

// fakeObjects serves one page per call.
type fakeObjects struct {
	bucket string
	pages  [][]types.Object
	calls  int
}

func (f *fakeObjects) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.bucket = aws.ToString(in.Bucket)
	page := f.pages[f.calls]
	f.calls++
	out := &s3.ListObjectsV2Output{Contents: page}
	if f.calls < len(f.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String("next")
	}
	return out, nil
}

func object(key string, at time.Time) types.Object {
	return types.Object{Key: aws.String(key), LastModified: aws.Time(at), Size: aws.Int64(42)}
}

func TestNewestObjects(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	client := &fakeObjects{pages: [][]types.Object{
		{object("a", base), object("c", base.Add(2*time.Hour))},
		{object("b", base.Add(time.Hour)), object("d", base.Add(-time.Hour))},
	}}

	objects, err := newestObjects(context.Background(), client, "bucket", 3)
	require.NoError(t, err)
	require.Equal(t, 2, client.calls)

	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		keys = append(keys, aws.ToString(o.Key))
	}
	require.Equal(t, []string{"c", "b", "a"}, keys)
}

func TestArtifactsCommand(t *testing.T) {
	c := testCLI(t)
	_, err := run(t, c, "artifacts", "mostrom", "ai-chatbot")
	require.ErrorContains(t, err, "PIPELINE_ARTIFACT_BUCKET_NAME is not set")

	client := &fakeObjects{pages: [][]types.Object{
		{object("dev-mostrom-ai-chatbo/SourceArti/abc.zip", time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))},
	}}
	c.settings.ArtifactBucketName = "artifacts"
	c.objects = func(context.Context) (s3.ListObjectsV2APIClient, error) { return client, nil }

	out, err := run(t, c, "artifacts", "mostrom", "ai-chatbot")
	require.NoError(t, err)
	require.Equal(t, "artifacts-dev-mostrom-ai-chatbot", client.bucket)
	require.Contains(t, out, "2025-03-01T12:00:00Z")
	require.Contains(t, out, "SourceArti/abc.zip")
}
