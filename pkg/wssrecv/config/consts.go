package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/heimdalr/dag"
)

var reservedNames = map[string]bool{
	"env": true,
}

// processConstBlocks evaluates every const attribute, in dependency order,
// into the evaluation context used by the rest of the configuration.
func (c *Config) processConstBlocks(blocks hcl.Blocks) hcl.Diagnostics {
	var diags hcl.Diagnostics
	consts := make(hcl.Attributes)

	for _, block := range blocks {
		attrs, attrDiags := block.Body.JustAttributes()
		diags = diags.Extend(attrDiags)

		for name, attr := range attrs {
			if reservedNames[name] {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Reserved name",
					Detail:   fmt.Sprintf("%s is reserved and can't be used as a constant name", name),
					Subject:  &attr.NameRange,
				})
				continue
			}
			if existing, exists := consts[name]; exists {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Duplicate attribute",
					Detail:   fmt.Sprintf("Attribute %s at %v is already defined at %v", name, attr.NameRange, existing.NameRange),
					Subject:  &attr.NameRange,
				})
				continue
			}
			consts[name] = attr
		}
	}
	if diags.HasErrors() {
		return diags
	}

	ordered, sortDiags := SortAttributesByDependencies(consts)
	diags = diags.Extend(sortDiags)
	if diags.HasErrors() {
		return diags
	}

	for _, attr := range ordered {
		value, evalDiags := attr.Expr.Value(c.evalCtx)
		diags = diags.Extend(evalDiags)
		c.Constants[attr.Name] = value
	}

	return diags
}

// SortAttributesByDependencies orders attrs so that every attribute comes
// after the attributes it references. References to names outside attrs
// are left for the evaluation context to resolve.
func SortAttributesByDependencies(attrs hcl.Attributes) ([]*hcl.Attribute, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	graph := dag.NewDAG()

	for _, attr := range attrs {
		if err := graph.AddVertexByID(attr.Name, attr); err != nil {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Failed to add attribute to dependency graph",
				Detail:   fmt.Sprintf("Error adding attribute %s: %s", attr.Name, err),
				Subject:  &attr.NameRange,
			})
		}
	}

	for name, attr := range attrs {
		for _, traversal := range attr.Expr.Variables() {
			ref := traversal.RootName()
			if _, exists := attrs[ref]; !exists {
				continue
			}
			if ref == name {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Circular dependency detected",
					Detail:   fmt.Sprintf("%s refers to itself", name),
					Subject:  &attr.Range,
				})
				continue
			}
			if err := graph.AddEdge(ref, name); err != nil {
				if _, dup := err.(dag.EdgeDuplicateError); dup {
					continue
				}
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Circular dependency detected",
					Detail:   fmt.Sprintf("Cannot add dependency from %s to %s: %s", ref, name, err),
					Subject:  &attr.Range,
				})
			}
		}
	}

	if diags.HasErrors() {
		return nil, diags
	}

	visitor := &attributeVertexVisitor{}
	graph.OrderedWalk(visitor)

	return visitor.attrs, diags
}

type attributeVertexVisitor struct {
	attrs []*hcl.Attribute
}

func (v *attributeVertexVisitor) Visit(vertex dag.Vertexer) {
	_, value := vertex.Vertex()
	v.attrs = append(v.attrs, value.(*hcl.Attribute))
}
