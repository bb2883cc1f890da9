package config

import (
	"github.com/hashicorp/hcl/v2"
)

var configSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "connector"},
		{Type: "const"},
	},
}

// GetBlocks collects the top-level blocks of every body. Unknown blocks
// and top-level attributes are reported as errors.
func GetBlocks(bodies []hcl.Body) (hcl.Blocks, hcl.Diagnostics) {
	diags := hcl.Diagnostics{}

	var blocks hcl.Blocks

	for _, body := range bodies {
		content, contentDiags := body.Content(configSchema)
		diags = diags.Extend(contentDiags)
		if content != nil {
			blocks = append(blocks, content.Blocks...)
		}
	}

	return blocks, diags
}
