// Package config loads optional HCL configuration for the connector.
package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"go.uber.org/zap"

	"github.com/quinnipak/wssrecv/pkg/wssrecv/config/functions"
	"github.com/quinnipak/wssrecv/pkg/wssrecv/websockets/client"
)

type ConfigBuilder struct {
	logger  *zap.Logger
	sources []any
}

// Config is the evaluated configuration. Zero values mean "not configured".
type Config struct {
	Logger    *zap.Logger
	Functions map[string]function.Function
	Constants map[string]cty.Value
	evalCtx   *hcl.EvalContext

	URL         string
	TrustAnchor string
	ReadLimit   *int64
	Headers     map[string][]string
	DefRange    hcl.Range
}

func NewConfig() *ConfigBuilder {
	return &ConfigBuilder{
		logger:  zap.NewNop(),
		sources: make([]any, 0),
	}
}

func (cb *ConfigBuilder) WithLogger(logger *zap.Logger) *ConfigBuilder {
	if logger != nil {
		cb.logger = logger
	}
	return cb
}

// WithSources adds configuration sources: file or directory paths, raw
// []byte HCL, or an fs.FS such as an embed.FS.
func (cb *ConfigBuilder) WithSources(sources ...any) *ConfigBuilder {
	cb.sources = append(cb.sources, sources...)
	return cb
}

func (cb *ConfigBuilder) Build() (*Config, hcl.Diagnostics) {
	config := &Config{
		Logger:    cb.logger,
		Functions: functions.GetStandardLibraryFunctions(),
		Constants: map[string]cty.Value{
			"env": GetEnvObject(),
		},
	}
	config.evalCtx = &hcl.EvalContext{
		Functions: config.Functions,
		Variables: config.Constants,
	}

	bodies, diags := ParseConfigFiles(cb.sources...)
	if diags.HasErrors() {
		return nil, diags
	}

	blocks, addDiags := GetBlocks(bodies)
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return nil, diags
	}

	byType := blocks.ByType()

	diags = diags.Extend(config.processConstBlocks(byType["const"]))
	if diags.HasErrors() {
		return nil, diags
	}

	diags = diags.Extend(config.processConnectorBlocks(byType["connector"]))
	if diags.HasErrors() {
		return nil, diags
	}

	config.Logger.Debug("Config built successfully",
		zap.Int("sources", len(cb.sources)),
		zap.Int("constants", len(config.Constants)-1),
	)

	return config, diags
}

// Apply copies every configured value onto the connector builder.
func (c *Config) Apply(b *client.ConnectorBuilder) *client.ConnectorBuilder {
	if c.URL != "" {
		b.WithURL(c.URL)
	}
	if c.TrustAnchor != "" {
		b.WithTrustAnchor(c.TrustAnchor)
	}
	if c.ReadLimit != nil {
		b.WithReadLimit(*c.ReadLimit)
	}
	if len(c.Headers) > 0 {
		b.WithHeaders(c.Headers)
	}
	return b
}

func duplicateBlock(kind string, existing hcl.Range, subject hcl.Range) *hcl.Diagnostic {
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  fmt.Sprintf("%s already defined", kind),
		Detail:   fmt.Sprintf("%s already defined at %s", kind, existing),
		Subject:  &subject,
	}
}
