package registry

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iot"
	"github.com/aws/aws-sdk-go-v2/service/iot/types"

	"github.com/iotfleet-server/iotfleet-server/internal/errs"
)

// iotClient defines the methods of the AWS IoT client that we use. This is
// used for mocking the client in tests.
type iotClient interface {
	DescribeThing(ctx context.Context,
		params *iot.DescribeThingInput,
		optFns ...func(*iot.Options)) (*iot.DescribeThingOutput, error)
	CreatePolicy(ctx context.Context,
		params *iot.CreatePolicyInput,
		optFns ...func(*iot.Options)) (*iot.CreatePolicyOutput, error)
	AttachPolicy(ctx context.Context,
		params *iot.AttachPolicyInput,
		optFns ...func(*iot.Options)) (*iot.AttachPolicyOutput, error)
	DetachPolicy(ctx context.Context,
		params *iot.DetachPolicyInput,
		optFns ...func(*iot.Options)) (*iot.DetachPolicyOutput, error)
	DeletePolicy(ctx context.Context,
		params *iot.DeletePolicyInput,
		optFns ...func(*iot.Options)) (*iot.DeletePolicyOutput, error)
	ListTargetsForPolicy(ctx context.Context,
		params *iot.ListTargetsForPolicyInput,
		optFns ...func(*iot.Options)) (*iot.ListTargetsForPolicyOutput, error)
	DeleteThing(ctx context.Context,
		params *iot.DeleteThingInput,
		optFns ...func(*iot.Options)) (*iot.DeleteThingOutput, error)
	ListThingPrincipals(ctx context.Context,
		params *iot.ListThingPrincipalsInput,
		optFns ...func(*iot.Options)) (*iot.ListThingPrincipalsOutput, error)
	DetachThingPrincipal(ctx context.Context,
		params *iot.DetachThingPrincipalInput,
		optFns ...func(*iot.Options)) (*iot.DetachThingPrincipalOutput, error)
	UpdateCertificate(ctx context.Context,
		params *iot.UpdateCertificateInput,
		optFns ...func(*iot.Options)) (*iot.UpdateCertificateOutput, error)
	DeleteCertificate(ctx context.Context,
		params *iot.DeleteCertificateInput,
		optFns ...func(*iot.Options)) (*iot.DeleteCertificateOutput, error)
	DeleteRoleAlias(ctx context.Context,
		params *iot.DeleteRoleAliasInput,
		optFns ...func(*iot.Options)) (*iot.DeleteRoleAliasOutput, error)
}

// check that the SDK client implements the narrowed interface
var _ iotClient = (*iot.Client)(nil)

// IoTRegistry implements Registry on AWS IoT Core.
type IoTRegistry struct {
	client iotClient
}

// NewIoTRegistry creates a registry client using the default AWS
// credential chain.
func NewIoTRegistry(ctx context.Context, region string) (*IoTRegistry, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewIoTRegistryFromConfig(cfg), nil
}

// NewIoTRegistryFromConfig creates a registry client from a prepared AWS
// config.
func NewIoTRegistryFromConfig(cfg aws.Config) *IoTRegistry {
	return &IoTRegistry{client: iot.NewFromConfig(cfg)}
}

// DescribeThing returns the device record
func (r *IoTRegistry) DescribeThing(ctx context.Context, thingName string) (*Thing, error) {
	out, err := r.client.DescribeThing(ctx, &iot.DescribeThingInput{
		ThingName: aws.String(thingName),
	})
	if err != nil {
		return nil, errs.FromAWS("registry.DescribeThing", err)
	}

	return &Thing{
		Name:       aws.ToString(out.ThingName),
		Attributes: out.Attributes,
	}, nil
}

// CreatePolicy creates the policy; already-exists is success
func (r *IoTRegistry) CreatePolicy(ctx context.Context, policyName, document string) error {
	_, err := r.client.CreatePolicy(ctx, &iot.CreatePolicyInput{
		PolicyName:     aws.String(policyName),
		PolicyDocument: aws.String(document),
	})
	if err != nil {
		mapped := errs.FromAWS("registry.CreatePolicy", err)
		if mapped.Kind == errs.Conflict {
			return nil
		}
		return mapped
	}
	return nil
}

// AttachPolicy attaches the policy to a target principal
func (r *IoTRegistry) AttachPolicy(ctx context.Context, policyName, target string) error {
	_, err := r.client.AttachPolicy(ctx, &iot.AttachPolicyInput{
		PolicyName: aws.String(policyName),
		Target:     aws.String(target),
	})
	if err != nil {
		return errs.FromAWS("registry.AttachPolicy", err)
	}
	return nil
}

// DetachPolicy detaches the policy from a target principal
func (r *IoTRegistry) DetachPolicy(ctx context.Context, policyName, target string) error {
	_, err := r.client.DetachPolicy(ctx, &iot.DetachPolicyInput{
		PolicyName: aws.String(policyName),
		Target:     aws.String(target),
	})
	if err != nil {
		return errs.FromAWS("registry.DetachPolicy", err)
	}
	return nil
}

// DeletePolicy deletes the policy
func (r *IoTRegistry) DeletePolicy(ctx context.Context, policyName string) error {
	_, err := r.client.DeletePolicy(ctx, &iot.DeletePolicyInput{
		PolicyName: aws.String(policyName),
	})
	if err != nil {
		return errs.FromAWS("registry.DeletePolicy", err)
	}
	return nil
}

// ListPolicyTargets lists the principals the policy is attached to
func (r *IoTRegistry) ListPolicyTargets(ctx context.Context, policyName string) ([]string, error) {
	var targets []string
	var marker *string

	for {
		out, err := r.client.ListTargetsForPolicy(ctx, &iot.ListTargetsForPolicyInput{
			PolicyName: aws.String(policyName),
			Marker:     marker,
		})
		if err != nil {
			return nil, errs.FromAWS("registry.ListPolicyTargets", err)
		}

		targets = append(targets, out.Targets...)
		if out.NextMarker == nil {
			return targets, nil
		}
		marker = out.NextMarker
	}
}

// DeleteThing deletes the device record
func (r *IoTRegistry) DeleteThing(ctx context.Context, thingName string) error {
	_, err := r.client.DeleteThing(ctx, &iot.DeleteThingInput{
		ThingName: aws.String(thingName),
	})
	if err != nil {
		return errs.FromAWS("registry.DeleteThing", err)
	}
	return nil
}

// ListThingPrincipals lists the principals attached to the device
func (r *IoTRegistry) ListThingPrincipals(ctx context.Context, thingName string) ([]string, error) {
	out, err := r.client.ListThingPrincipals(ctx, &iot.ListThingPrincipalsInput{
		ThingName: aws.String(thingName),
	})
	if err != nil {
		return nil, errs.FromAWS("registry.ListThingPrincipals", err)
	}
	return out.Principals, nil
}

// DetachThingPrincipal detaches a principal from the device
func (r *IoTRegistry) DetachThingPrincipal(ctx context.Context, thingName, principal string) error {
	_, err := r.client.DetachThingPrincipal(ctx, &iot.DetachThingPrincipalInput{
		ThingName: aws.String(thingName),
		Principal: aws.String(principal),
	})
	if err != nil {
		return errs.FromAWS("registry.DetachThingPrincipal", err)
	}
	return nil
}

// DeactivateCertificate marks the certificate inactive
func (r *IoTRegistry) DeactivateCertificate(ctx context.Context, certificateID string) error {
	_, err := r.client.UpdateCertificate(ctx, &iot.UpdateCertificateInput{
		CertificateId: aws.String(certificateID),
		NewStatus:     types.CertificateStatusInactive,
	})
	if err != nil {
		return errs.FromAWS("registry.DeactivateCertificate", err)
	}
	return nil
}

// DeleteCertificate deletes the certificate
func (r *IoTRegistry) DeleteCertificate(ctx context.Context, certificateID string) error {
	_, err := r.client.DeleteCertificate(ctx, &iot.DeleteCertificateInput{
		CertificateId: aws.String(certificateID),
	})
	if err != nil {
		return errs.FromAWS("registry.DeleteCertificate", err)
	}
	return nil
}

// DeleteRoleAlias deletes a credential role alias
func (r *IoTRegistry) DeleteRoleAlias(ctx context.Context, alias string) error {
	_, err := r.client.DeleteRoleAlias(ctx, &iot.DeleteRoleAliasInput{
		RoleAlias: aws.String(alias),
	})
	if err != nil {
		return errs.FromAWS("registry.DeleteRoleAlias", err)
	}
	return nil
}
