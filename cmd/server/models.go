package main

import (
	"github.com/liamcoop/easyrules/multitenantengine"
	"github.com/liamcoop/easyrules/ruledef"
	"github.com/liamcoop/easyrules/rules"
)

// API request and response models

// CreateTenantRequest is the body for creating a tenant. Parameters left out
// keep the server defaults.
type CreateTenantRequest struct {
	ID string `json:"id" example:"shop"`
	multitenantengine.TenantConfig
}

// TenantResponse represents a tenant in API responses
type TenantResponse struct {
	ID         string                   `json:"id" example:"shop"`
	Language   string                   `json:"language" example:"cel"`
	Schema     multitenantengine.Schema `json:"schema,omitempty"`
	Parameters rules.Parameters         `json:"parameters"`
	RuleCount  int                      `json:"ruleCount" example:"3"`
}

// TenantsListResponse represents the response for listing tenants
type TenantsListResponse struct {
	Tenants []TenantResponse `json:"tenants"`
}

// UpdateSchemaRequest is the body for replacing a tenant schema
type UpdateSchemaRequest struct {
	Definition multitenantengine.Schema `json:"definition"`
}

// RulesRequest is the body for replacing a tenant's rules
type RulesRequest struct {
	Rules []ruledef.Definition `json:"rules"`
}

// RulesListResponse lists the rule definitions of a tenant
type RulesListResponse struct {
	Rules []ruledef.Definition `json:"rules"`
}

// FactsRequest is the body of fire and check requests
type FactsRequest struct {
	Facts map[string]any `json:"facts"`
}

// FireResponse carries the facts as the actions left them
type FireResponse struct {
	RunID          string         `json:"runId"`
	Result         bool           `json:"result"`
	Facts          map[string]any `json:"facts"`
	EvaluationTime string         `json:"evaluationTime" example:"2.3ms"`
}

// CheckResult is the outcome of one rule condition
type CheckResult struct {
	Rule     string `json:"rule" example:"big-order"`
	Priority int    `json:"priority" example:"1"`
	Matched  bool   `json:"matched" example:"true"`
}

// CheckResponse lists condition outcomes in rule order
type CheckResponse struct {
	RunID          string        `json:"runId"`
	Results        []CheckResult `json:"results"`
	EvaluationTime string        `json:"evaluationTime" example:"2.3ms"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"tenant not found"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string `json:"status" example:"healthy"`
	TenantsLoaded int    `json:"tenantsLoaded" example:"2"`
}
