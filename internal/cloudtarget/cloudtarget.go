// Package cloudtarget resolves a Configuration's expose-mode remote_address
// against AWS RDS when the config names an RDS identifier instead of a
// literal host, supplementing the Expose Deployer (spec §4.7, §3's
// remote_address field). Grounded directly on the teacher's
// GetAWSRDSEndpoints/getAllRDSInstances/getAllRDSClusters (lib/aws.go),
// generalized from "list every endpoint for a picker UI" into "resolve one
// named identifier on demand".
package cloudtarget

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/kftray/kftray-core/internal/logging"
)

// Options identifies which AWS account/region to resolve against, mirroring
// the teacher's AWSConfig.
type Options struct {
	Region  string
	Profile string
}

// Endpoint is a resolved RDS connection target.
type Endpoint struct {
	Identifier string
	Address    string
	Port       int32
	IsCluster  bool
}

// ResolveRDSEndpoint finds the RDS instance or cluster identified by
// identifier and returns its connection endpoint. Instances are checked
// before clusters, matching the teacher's precedence when both collections
// are fetched.
func ResolveRDSEndpoint(ctx context.Context, opts Options, identifier string) (Endpoint, error) {
	opLog, ctx := logging.StartOperation(ctx, "cloudtarget", "resolve_rds_endpoint")

	if opts.Profile == "" {
		return Endpoint{}, fmt.Errorf("aws profile is required to resolve RDS endpoint %q", identifier)
	}
	if opts.Region == "" {
		return Endpoint{}, fmt.Errorf("aws region is required to resolve RDS endpoint %q", identifier)
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithSharedConfigProfile(opts.Profile),
	)
	if err != nil {
		opLog.Complete("failed", err)
		return Endpoint{}, fmt.Errorf("loading aws config for profile %q: %w", opts.Profile, err)
	}

	client := rds.NewFromConfig(cfg)

	if instance, err := findInstance(ctx, client, identifier); err == nil {
		opLog.Complete("found_instance", nil)
		return instance, nil
	}

	endpoint, err := findCluster(ctx, client, identifier)
	if err != nil {
		opLog.Complete("not_found", err)
		return Endpoint{}, fmt.Errorf("no RDS instance or cluster named %q: %w", identifier, err)
	}

	opLog.Complete("found_cluster", nil)
	return endpoint, nil
}

func findInstance(ctx context.Context, client *rds.Client, identifier string) (Endpoint, error) {
	out, err := client.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(identifier),
	})
	if err != nil {
		return Endpoint{}, err
	}
	for _, instance := range out.DBInstances {
		if instance.Endpoint == nil {
			continue
		}
		return Endpoint{
			Identifier: aws.ToString(instance.DBInstanceIdentifier),
			Address:    aws.ToString(instance.Endpoint.Address),
			Port:       aws.ToInt32(instance.Endpoint.Port),
			IsCluster:  false,
		}, nil
	}
	return Endpoint{}, fmt.Errorf("instance %q has no endpoint", identifier)
}

func findCluster(ctx context.Context, client *rds.Client, identifier string) (Endpoint, error) {
	out, err := client.DescribeDBClusters(ctx, &rds.DescribeDBClustersInput{
		DBClusterIdentifier: aws.String(identifier),
	})
	if err != nil {
		return Endpoint{}, err
	}
	for _, cluster := range out.DBClusters {
		if aws.ToString(cluster.Endpoint) == "" {
			continue
		}
		return Endpoint{
			Identifier: aws.ToString(cluster.DBClusterIdentifier),
			Address:    aws.ToString(cluster.Endpoint),
			Port:       aws.ToInt32(cluster.Port),
			IsCluster:  true,
		}, nil
	}
	return Endpoint{}, fmt.Errorf("cluster %q has no endpoint", identifier)
}
