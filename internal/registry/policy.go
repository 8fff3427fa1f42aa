package registry

import (
	"encoding/json"
	"fmt"
)

// TenantAttributeName is the device attribute carrying the owning tenant,
// stamped through provisioning-template overrides at creation time.
const TenantAttributeName = "Company"

// policyNamePrefix namespaces the per-tenant access policies inside the
// registry.
const policyNamePrefix = "iotfleet-tenant-"

// PolicyName derives the access policy name from the tenant id. The
// derivation is deterministic, which is what makes policy creation
// idempotent: the same tenant always asks for the same name.
func PolicyName(tenantID string) string {
	return policyNamePrefix + tenantID
}

// RoleAliasName derives the tenant's credential role alias name.
func RoleAliasName(tenantID string) string {
	return policyNamePrefix + tenantID + "-role"
}

type policyStatement struct {
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource []string `json:"Resource"`
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

// PolicyDocument builds the tenant-scoped policy document. Connect,
// subscribe, publish and receive are all confined to the tenant's own
// topic namespace; nothing in the document reaches outside tenantID.
func PolicyDocument(region, accountID, tenantID string) (string, error) {
	arn := func(kind, suffix string) string {
		return fmt.Sprintf("arn:aws:iot:%s:%s:%s/%s", region, accountID, kind, suffix)
	}

	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{
			{
				Effect:   "Allow",
				Action:   []string{"iot:Connect"},
				Resource: []string{arn("client", tenantID+"-*")},
			},
			{
				Effect:   "Allow",
				Action:   []string{"iot:Subscribe"},
				Resource: []string{arn("topicfilter", tenantID+"/*")},
			},
			{
				Effect:   "Allow",
				Action:   []string{"iot:Publish", "iot:Receive"},
				Resource: []string{arn("topic", tenantID+"/*")},
			},
		},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal policy document: %w", err)
	}
	return string(data), nil
}
