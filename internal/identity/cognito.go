package identity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/iotfleet-server/iotfleet-server/internal/errs"
)

// userPoolClient defines the methods of the Cognito user pool client that
// we use. This is used for mocking the client in tests.
type userPoolClient interface {
	CreateGroup(ctx context.Context,
		params *cognitoidentityprovider.CreateGroupInput,
		optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.CreateGroupOutput, error)
	DeleteGroup(ctx context.Context,
		params *cognitoidentityprovider.DeleteGroupInput,
		optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.DeleteGroupOutput, error)
	AdminAddUserToGroup(ctx context.Context,
		params *cognitoidentityprovider.AdminAddUserToGroupInput,
		optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminAddUserToGroupOutput, error)
	AdminRemoveUserFromGroup(ctx context.Context,
		params *cognitoidentityprovider.AdminRemoveUserFromGroupInput,
		optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminRemoveUserFromGroupOutput, error)
	AdminUpdateUserAttributes(ctx context.Context,
		params *cognitoidentityprovider.AdminUpdateUserAttributesInput,
		optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminUpdateUserAttributesOutput, error)
}

// identityPoolClient defines the methods of the Cognito identity pool
// client that we use.
type identityPoolClient interface {
	GetId(ctx context.Context,
		params *cognitoidentity.GetIdInput,
		optFns ...func(*cognitoidentity.Options)) (*cognitoidentity.GetIdOutput, error)
}

// check that the SDK clients implement the narrowed interfaces
var (
	_ userPoolClient     = (*cognitoidentityprovider.Client)(nil)
	_ identityPoolClient = (*cognitoidentity.Client)(nil)
)

// CognitoDirectory implements Directory on a Cognito user pool plus an
// identity pool.
type CognitoDirectory struct {
	userPool       userPoolClient
	identityPool   identityPoolClient
	userPoolID     string
	identityPoolID string

	// loginProvider is the Logins map key of the user pool, e.g.
	// cognito-idp.<region>.amazonaws.com/<pool id>.
	loginProvider string
}

// NewCognitoDirectory creates a directory bound to the given pools using
// the default AWS credential chain.
func NewCognitoDirectory(ctx context.Context, region, userPoolID, identityPoolID string) (*CognitoDirectory, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewCognitoDirectoryFromConfig(cfg, region, userPoolID, identityPoolID), nil
}

// NewCognitoDirectoryFromConfig creates a directory from a prepared AWS
// config.
func NewCognitoDirectoryFromConfig(cfg aws.Config, region, userPoolID, identityPoolID string) *CognitoDirectory {
	return &CognitoDirectory{
		userPool:       cognitoidentityprovider.NewFromConfig(cfg),
		identityPool:   cognitoidentity.NewFromConfig(cfg),
		userPoolID:     userPoolID,
		identityPoolID: identityPoolID,
		loginProvider:  fmt.Sprintf("cognito-idp.%s.amazonaws.com/%s", region, userPoolID),
	}
}

// CreateGroup creates the identity-directory group named groupName
func (d *CognitoDirectory) CreateGroup(ctx context.Context, groupName string) error {
	_, err := d.userPool.CreateGroup(ctx, &cognitoidentityprovider.CreateGroupInput{
		GroupName:  aws.String(groupName),
		UserPoolId: aws.String(d.userPoolID),
	})
	if err != nil {
		return errs.FromAWS("identity.CreateGroup", err)
	}
	return nil
}

// DeleteGroup deletes the group
func (d *CognitoDirectory) DeleteGroup(ctx context.Context, groupName string) error {
	_, err := d.userPool.DeleteGroup(ctx, &cognitoidentityprovider.DeleteGroupInput{
		GroupName:  aws.String(groupName),
		UserPoolId: aws.String(d.userPoolID),
	})
	if err != nil {
		return errs.FromAWS("identity.DeleteGroup", err)
	}
	return nil
}

// AddUserToGroup adds the identity to the group
func (d *CognitoDirectory) AddUserToGroup(ctx context.Context, username, groupName string) error {
	_, err := d.userPool.AdminAddUserToGroup(ctx, &cognitoidentityprovider.AdminAddUserToGroupInput{
		GroupName:  aws.String(groupName),
		UserPoolId: aws.String(d.userPoolID),
		Username:   aws.String(username),
	})
	if err != nil {
		return errs.FromAWS("identity.AddUserToGroup", err)
	}
	return nil
}

// RemoveUserFromGroup removes the identity from the group
func (d *CognitoDirectory) RemoveUserFromGroup(ctx context.Context, username, groupName string) error {
	_, err := d.userPool.AdminRemoveUserFromGroup(ctx, &cognitoidentityprovider.AdminRemoveUserFromGroupInput{
		GroupName:  aws.String(groupName),
		UserPoolId: aws.String(d.userPoolID),
		Username:   aws.String(username),
	})
	if err != nil {
		return errs.FromAWS("identity.RemoveUserFromGroup", err)
	}
	return nil
}

// UpdateUserAttribute sets a single attribute on the identity
func (d *CognitoDirectory) UpdateUserAttribute(ctx context.Context, username, name, value string) error {
	_, err := d.userPool.AdminUpdateUserAttributes(ctx, &cognitoidentityprovider.AdminUpdateUserAttributesInput{
		UserPoolId: aws.String(d.userPoolID),
		Username:   aws.String(username),
		UserAttributes: []types.AttributeType{
			{Name: aws.String(name), Value: aws.String(value)},
		},
	})
	if err != nil {
		return errs.FromAWS("identity.UpdateUserAttribute", err)
	}
	return nil
}

// ResolveFederatedIdentity exchanges the bearer token for the caller's
// federated identity id.
func (d *CognitoDirectory) ResolveFederatedIdentity(ctx context.Context, idToken string) (string, error) {
	const op = "identity.ResolveFederatedIdentity"

	out, err := d.identityPool.GetId(ctx, &cognitoidentity.GetIdInput{
		IdentityPoolId: aws.String(d.identityPoolID),
		Logins:         map[string]string{d.loginProvider: idToken},
	})
	if err != nil {
		return "", errs.FromAWS(op, err)
	}
	if out.IdentityId == nil || *out.IdentityId == "" {
		return "", errs.E(errs.Upstream, op, "identity pool returned no identity id")
	}

	return *out.IdentityId, nil
}
