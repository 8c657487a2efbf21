// Package multitenantengine keeps one compiled rule set and engine per tenant.
package multitenantengine

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/liamcoop/easyrules/ruledef"
	"github.com/liamcoop/easyrules/rules"
	"github.com/liamcoop/easyrules/rules/celrule"
)

// ErrTenantNotFound is returned for operations on unknown tenants
var ErrTenantNotFound = errors.New("tenant not found")

// Schema represents a tenant's data schema
// Maps object names to field definitions
type Schema map[string]map[string]string

// TenantConfig is everything needed to build a tenant
type TenantConfig struct {
	Language   string               `json:"language,omitempty" yaml:"language,omitempty"`
	Schema     Schema               `json:"schema,omitempty" yaml:"schema,omitempty"`
	Parameters *rules.Parameters    `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Rules      []ruledef.Definition `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// TenantEngine is an immutable snapshot of a tenant. Updates build a new
// snapshot and swap it in, so a run always sees one consistent rule set.
type TenantEngine struct {
	TenantID    string
	Language    string
	Schema      Schema
	Parameters  rules.Parameters
	Definitions []ruledef.Definition
	Rules       *rules.Rules
	Engine      *rules.Engine
}

// EngineOptionsFunc supplies per-tenant engine options such as listeners
type EngineOptionsFunc func(tenantID string) []rules.Option

// MultiTenantEngineManager manages engines for all tenants
type MultiTenantEngineManager struct {
	engines       map[string]*TenantEngine
	sources       map[string]string
	defaults      rules.Parameters
	engineOptions EngineOptionsFunc
	logger        *slog.Logger
	mu            sync.RWMutex
}

// ManagerOption configures a MultiTenantEngineManager
type ManagerOption func(*MultiTenantEngineManager)

// WithDefaultParameters sets the parameters for tenants that do not set their own
func WithDefaultParameters(p rules.Parameters) ManagerOption {
	return func(m *MultiTenantEngineManager) { m.defaults = p }
}

// WithEngineOptions sets a hook that adds options to every tenant engine
func WithEngineOptions(fn EngineOptionsFunc) ManagerOption {
	return func(m *MultiTenantEngineManager) { m.engineOptions = fn }
}

func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *MultiTenantEngineManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMultiTenantEngineManager creates a new manager instance
func NewMultiTenantEngineManager(opts ...ManagerOption) *MultiTenantEngineManager {
	m := &MultiTenantEngineManager{
		engines:  make(map[string]*TenantEngine),
		sources:  make(map[string]string),
		defaults: rules.DefaultParameters(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Defaults returns the parameters used by tenants without their own
func (m *MultiTenantEngineManager) Defaults() rules.Parameters {
	return m.defaults
}

// CreateCELEnvFromSchema creates a CEL environment with variables defined by the schema
func CreateCELEnvFromSchema(schema Schema) (*cel.Env, error) {
	// Each top-level object becomes a DynType variable; fields are checked at runtime.
	env, err := celrule.NewEnv(slices.Sorted(maps.Keys(schema))...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// compilerFor validates the schema and returns the compiler for the tenant language
func compilerFor(language string, schema Schema) (ruledef.Compiler, error) {
	if len(schema) > 0 {
		if err := ValidateSchema(schema); err != nil {
			return nil, fmt.Errorf("invalid schema: %w", err)
		}
	}

	switch language {
	case "", ruledef.LanguageCEL:
		if len(schema) == 0 {
			return nil, errors.New("CEL tenants need a schema declaring their facts")
		}
		env, err := CreateCELEnvFromSchema(schema)
		if err != nil {
			return nil, err
		}
		return ruledef.CELCompiler(env), nil
	default:
		return ruledef.CompilerFor(language)
	}
}

// build compiles a tenant snapshot without touching the manager state
func (m *MultiTenantEngineManager) build(tenantID string, cfg TenantConfig) (*TenantEngine, error) {
	if tenantID == "" {
		return nil, errors.New("tenant id cannot be empty")
	}

	language := strings.ToLower(strings.TrimSpace(cfg.Language))
	if language == "" {
		language = ruledef.LanguageCEL
	}

	compiler, err := compilerFor(language, cfg.Schema)
	if err != nil {
		return nil, err
	}

	rs, err := ruledef.NewFactory(nil, compiler).CreateRulesFromDefinitions(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}

	params := m.defaults
	if cfg.Parameters != nil {
		params = *cfg.Parameters
	}

	return &TenantEngine{
		TenantID:    tenantID,
		Language:    language,
		Schema:      cfg.Schema,
		Parameters:  params,
		Definitions: slices.Clone(cfg.Rules),
		Rules:       rs,
		Engine:      rules.NewEngine(params, m.tenantOptions(tenantID)...),
	}, nil
}

func (m *MultiTenantEngineManager) tenantOptions(tenantID string, extra ...rules.Option) []rules.Option {
	opts := []rules.Option{rules.WithLogger(m.logger.With("tenant", tenantID))}
	if m.engineOptions != nil {
		opts = append(opts, m.engineOptions(tenantID)...)
	}
	return append(opts, extra...)
}

// config returns the TenantConfig a snapshot was built from
func (te *TenantEngine) config() TenantConfig {
	params := te.Parameters
	return TenantConfig{
		Language:   te.Language,
		Schema:     te.Schema,
		Parameters: &params,
		Rules:      te.Definitions,
	}
}

// CreateTenant compiles a tenant and stores it, replacing any tenant with the same id
func (m *MultiTenantEngineManager) CreateTenant(tenantID string, cfg TenantConfig) error {
	te, err := m.build(tenantID, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize tenant %s: %w", tenantID, err)
	}

	m.mu.Lock()
	m.engines[tenantID] = te
	delete(m.sources, tenantID)
	m.mu.Unlock()

	m.logger.Info("Tenant created", "tenant", tenantID, "language", te.Language, "rules", te.Rules.Len())
	return nil
}

// GetTenant returns the current snapshot of a tenant
func (m *MultiTenantEngineManager) GetTenant(tenantID string) (*TenantEngine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	te, exists := m.engines[tenantID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}
	return te, nil
}

// GetEngine retrieves the engine for a specific tenant
func (m *MultiTenantEngineManager) GetEngine(tenantID string) (*rules.Engine, error) {
	te, err := m.GetTenant(tenantID)
	if err != nil {
		return nil, err
	}
	return te.Engine, nil
}

// update rebuilds a tenant from its current config after applying change.
// The swap only happens if the new snapshot compiles.
func (m *MultiTenantEngineManager) update(tenantID string, change func(*TenantConfig)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.engines[tenantID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}

	cfg := existing.config()
	change(&cfg)

	te, err := m.build(tenantID, cfg)
	if err != nil {
		return err
	}
	m.engines[tenantID] = te
	return nil
}

// UpdateTenantSchema updates a tenant's schema and recompiles all rules.
// If any rule no longer compiles the tenant is left unchanged.
func (m *MultiTenantEngineManager) UpdateTenantSchema(tenantID string, newSchema Schema) error {
	if err := m.update(tenantID, func(cfg *TenantConfig) { cfg.Schema = newSchema }); err != nil {
		return fmt.Errorf("failed to update schema for tenant %s: %w", tenantID, err)
	}
	m.logger.Info("Tenant schema updated", "tenant", tenantID, "objects", len(newSchema))
	return nil
}

// UpdateTenantRules replaces a tenant's rule definitions
func (m *MultiTenantEngineManager) UpdateTenantRules(tenantID string, defs []ruledef.Definition) error {
	if err := m.update(tenantID, func(cfg *TenantConfig) { cfg.Rules = defs }); err != nil {
		return fmt.Errorf("failed to update rules for tenant %s: %w", tenantID, err)
	}
	m.logger.Info("Tenant rules updated", "tenant", tenantID, "rules", len(defs))
	return nil
}

// ListTenants returns all loaded tenant IDs in sorted order
func (m *MultiTenantEngineManager) ListTenants() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Sorted(maps.Keys(m.engines))
}

// DeleteTenant removes a tenant
func (m *MultiTenantEngineManager) DeleteTenant(tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.engines[tenantID]; !exists {
		return fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}

	delete(m.engines, tenantID)
	delete(m.sources, tenantID)
	return nil
}

// engineFor returns the tenant engine, or a one-off engine with extra options
func (m *MultiTenantEngineManager) engineFor(te *TenantEngine, extra []rules.Option) *rules.Engine {
	if len(extra) == 0 {
		return te.Engine
	}
	return rules.NewEngine(te.Parameters, m.tenantOptions(te.TenantID, extra...)...)
}

// Fire runs the tenant's rules against facts. Extra options apply to this run only.
func (m *MultiTenantEngineManager) Fire(tenantID string, facts *rules.Facts, opts ...rules.Option) (bool, error) {
	te, err := m.GetTenant(tenantID)
	if err != nil {
		return false, err
	}
	return m.engineFor(te, opts).Fire(te.Rules, facts), nil
}

// Check evaluates the tenant's rules against facts without running actions
func (m *MultiTenantEngineManager) Check(tenantID string, facts *rules.Facts, opts ...rules.Option) (map[rules.RuleKey]bool, error) {
	te, err := m.GetTenant(tenantID)
	if err != nil {
		return nil, err
	}
	return m.engineFor(te, opts).Check(te.Rules, facts)
}
