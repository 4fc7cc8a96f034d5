package stacks

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScalingBounds(t *testing.T) {
	tests := []struct {
		desired int
		want    Bounds
	}{
		{desired: -1, want: Bounds{Min: 1, Max: 2}},
		{desired: 0, want: Bounds{Min: 1, Max: 2}},
		{desired: 1, want: Bounds{Min: 1, Max: 5}},
		{desired: 3, want: Bounds{Min: 3, Max: 15}},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ScalingBounds(tt.desired), "desired %d", tt.desired)
	}
}

func TestArtifactBucketName(t *testing.T) {
	require.Equal(t, "artifacts-dev-ov3r-postgres", ArtifactBucketName("artifacts", "dev-ov3r-postgres"))

	long := ArtifactBucketName("organisation-pipeline-artifacts", "prod-comprehend-platform-comprehend-web-svc")
	require.Len(t, long, maxBucketName)
	require.NotEqual(t, byte('-'), long[len(long)-1])
}
