package config

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// ConfigFileExtension is the suffix of files picked up from directories.
const ConfigFileExtension = ".hcl"

// ParseConfigFiles parses each source into an HCL body. A source is a file
// or directory path, raw HCL bytes, or an fs.FS such as an embed.FS.
// Directories and file systems contribute every *.hcl file beneath them.
func ParseConfigFiles(sources ...any) ([]hcl.Body, hcl.Diagnostics) {
	p := &sourceParser{parser: hclparse.NewParser()}

	for _, source := range sources {
		switch v := source.(type) {
		case string:
			p.parsePath(v)
		case []byte:
			p.add(p.parser.ParseHCL(v, fmt.Sprintf("<bytes@%p>", v)))
		case fs.FS:
			p.parseTree(v, ".", func(name string) string { return name })
		default:
			p.diags = p.diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid source type",
				Detail:   fmt.Sprintf("Configuration sources must be a path, []byte or fs.FS, got %T", v),
			})
		}
	}

	return p.bodies, p.diags
}

type sourceParser struct {
	parser *hclparse.Parser
	bodies []hcl.Body
	diags  hcl.Diagnostics
}

func (p *sourceParser) add(file *hcl.File, diags hcl.Diagnostics) {
	p.diags = p.diags.Extend(diags)
	if file != nil {
		p.bodies = append(p.bodies, file.Body)
	}
}

func (p *sourceParser) fail(summary, name string, err error) {
	p.diags = p.diags.Append(&hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  summary,
		Detail:   fmt.Sprintf("%s: %s", name, err),
	})
}

func (p *sourceParser) parsePath(name string) {
	info, err := os.Stat(name)
	if err != nil {
		p.fail("Failed to read configuration", name, err)
		return
	}

	if !info.IsDir() {
		p.add(p.parser.ParseHCLFile(name))
		return
	}

	p.parseTree(os.DirFS(name), ".", func(rel string) string {
		return filepath.Join(name, filepath.FromSlash(rel))
	})
}

// parseTree parses every config file under root in fsys. display maps an
// fs.FS path to the filename shown in diagnostics.
func (p *sourceParser) parseTree(fsys fs.FS, root string, display func(string) string) {
	err := fs.WalkDir(fsys, root, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			p.fail("Failed to read configuration", display(name), err)
			return nil
		}
		if d.IsDir() || path.Ext(name) != ConfigFileExtension {
			return nil
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			p.fail("Failed to read configuration", display(name), err)
			return nil
		}
		p.add(p.parser.ParseHCL(content, display(name)))
		return nil
	})
	if err != nil {
		p.fail("Failed to walk configuration directory", display(root), err)
	}
}
