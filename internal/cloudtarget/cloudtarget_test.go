package cloudtarget

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveRDSEndpointRequiresProfile(t *testing.T) {
	_, err := ResolveRDSEndpoint(context.Background(), Options{Region: "us-east-1"}, "my-db")
	assert.ErrorContains(t, err, "profile is required")
}

func TestResolveRDSEndpointRequiresRegion(t *testing.T) {
	_, err := ResolveRDSEndpoint(context.Background(), Options{Profile: "default"}, "my-db")
	assert.ErrorContains(t, err, "region is required")
}
