package config

import (
	"fmt"
	"net/url"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
)

type ConnectorDefinition struct {
	URL         *string           `hcl:"url,optional"`
	TrustAnchor *string           `hcl:"trust_anchor,optional"`
	ReadLimit   *int64            `hcl:"read_limit,optional"`
	Headers     map[string]string `hcl:"headers,optional"`
	DefRange    hcl.Range         `hcl:",def_range"`
}

func (c *Config) processConnectorBlocks(blocks hcl.Blocks) hcl.Diagnostics {
	var diags hcl.Diagnostics

	for i, block := range blocks {
		if i > 0 {
			diags = diags.Append(duplicateBlock("Connector", blocks[0].DefRange, block.DefRange))
			continue
		}

		def := ConnectorDefinition{}
		decodeDiags := gohcl.DecodeBody(block.Body, c.evalCtx, &def)
		diags = diags.Extend(decodeDiags)
		if decodeDiags.HasErrors() {
			continue
		}

		diags = diags.Extend(c.applyConnectorDefinition(&def))
	}

	return diags
}

func (c *Config) applyConnectorDefinition(def *ConnectorDefinition) hcl.Diagnostics {
	var diags hcl.Diagnostics

	c.DefRange = def.DefRange

	if def.URL != nil {
		u, err := url.Parse(*def.URL)
		if err != nil || u.Scheme != "wss" {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid connector URL",
				Detail:   fmt.Sprintf("url must be a wss:// URL, got %q", *def.URL),
				Subject:  &def.DefRange,
			})
		} else {
			c.URL = *def.URL
		}
	}

	if def.TrustAnchor != nil {
		if *def.TrustAnchor == "" {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid trust anchor",
				Detail:   "trust_anchor must not be empty",
				Subject:  &def.DefRange,
			})
		} else {
			c.TrustAnchor = *def.TrustAnchor
		}
	}

	if def.ReadLimit != nil {
		if *def.ReadLimit < -1 {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid read limit",
				Detail:   fmt.Sprintf("read_limit must be -1 (unlimited), 0 (default) or positive, got %d", *def.ReadLimit),
				Subject:  &def.DefRange,
			})
		} else {
			c.ReadLimit = def.ReadLimit
		}
	}

	if len(def.Headers) > 0 {
		c.Headers = make(map[string][]string, len(def.Headers))
		for key, value := range def.Headers {
			c.Headers[key] = []string{value}
		}
	}

	return diags
}
