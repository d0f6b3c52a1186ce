// locator.go: Resource discovery across a project's source roots
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"path/filepath"
	"sort"

	"github.com/agilira/go-errors"
	"github.com/spf13/afero"
)

// Resource is one configuration file reachable from a project's source roots.
type Resource struct {
	Path   string         `json:"path"`
	Root   string         `json:"root"`
	Format ResourceFormat `json:"format"`
	// Rank is the position of Root in the project's root list; lower outranks higher.
	Rank int `json:"rank"`
}

// Locator enumerates the candidate configuration resources of a project.
// It holds no state between calls.
type Locator struct {
	fs        afero.Fs
	subPaths  []string
	baseNames []string
	profiles  []string
	formats   []ResourceFormat
	warn      ErrorHandler
	audit     *AuditLogger
}

// NewLocator creates a locator over fs using the naming rules in config.
func NewLocator(fs afero.Fs, config Config) *Locator {
	cfg := config.WithDefaults()
	if fs == nil {
		fs = cfg.Fs
	}

	formats := append([]ResourceFormat(nil), cfg.Formats...)
	sort.SliceStable(formats, func(i, j int) bool { return formats[i] < formats[j] })

	return &Locator{
		fs:        fs,
		subPaths:  cfg.ResourceSubPaths,
		baseNames: cfg.BaseNames,
		profiles:  cfg.Profiles,
		formats:   formats,
		warn:      cfg.ErrorHandler,
	}
}

// withAudit attaches an audit logger used to record rejected paths.
func (l *Locator) withAudit(audit *AuditLogger) *Locator {
	l.audit = audit
	return l
}

// fileNames returns the resource file names searched in every sub-path, in
// precedence order: each base name, then each profile variant, flat format first.
func (l *Locator) fileNames() []string {
	variants := make([]string, 0, len(l.baseNames)*(1+len(l.profiles)))
	for _, base := range l.baseNames {
		variants = append(variants, base)
		for _, profile := range l.profiles {
			variants = append(variants, base+"-"+profile)
		}
	}

	names := make([]string, 0, len(variants)*len(l.formats)*2)
	for _, variant := range variants {
		for _, format := range l.formats {
			for _, ext := range format.extensions() {
				names = append(names, variant+ext)
			}
		}
	}
	return names
}

// Candidates returns every path where a resource may appear for p, whether or
// not it exists yet. File watchers use it to know what to observe.
func (l *Locator) Candidates(p Project) []Resource {
	names := l.fileNames()
	var out []Resource
	seen := make(map[string]struct{})

	for rank, root := range p.Roots {
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		for _, sub := range l.subPaths {
			dir := root
			if sub != "" {
				dir = filepath.Join(root, sub)
			}
			for _, name := range names {
				path := filepath.Join(dir, name)
				if _, dup := seen[path]; dup {
					continue
				}
				seen[path] = struct{}{}
				out = append(out, Resource{
					Path:   path,
					Root:   root,
					Format: DetectFormat(name),
					Rank:   rank,
				})
			}
		}
	}
	return out
}

// Locate returns the existing resources of p in priority order: root order
// first, then sub-path order, then file-name precedence. It never fails; a
// project without roots yields an empty slice.
func (l *Locator) Locate(p Project) []Resource {
	candidates := l.Candidates(p)
	found := make([]Resource, 0, len(candidates)/4)

	for _, res := range candidates {
		if err := ValidateSecurePath(res.Path); err != nil {
			l.audit.LogSecurityEvent("path_rejected", "Rejected unsafe resource path",
				map[string]interface{}{
					"project": string(p.ID),
					"path":    res.Path,
					"reason":  err.Error(),
				})
			if l.warn != nil {
				l.warn(errors.Wrap(err, ErrCodeUnsafePath, "resource path rejected").
					WithContext("project", string(p.ID)), res.Path)
			}
			continue
		}

		info, err := l.fs.Stat(res.Path)
		if err != nil || info.IsDir() {
			continue
		}
		found = append(found, res)
	}
	return found
}
