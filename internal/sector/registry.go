// Package sector holds the immutable table of sector profiles and ERP
// endpoint configs, parsed once from an embedded YAML file.
package sector

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed sectors.yaml
var embeddedTable []byte

type yamlEndpoint struct {
	Label         string `yaml:"label"`
	Path          string `yaml:"path"`
	PageParam     string `yaml:"page_param"`
	PageSizeParam string `yaml:"page_size_param"`
	DateRange     bool   `yaml:"date_range"`
	StartParam    string `yaml:"start_param"`
	EndParam      string `yaml:"end_param"`
}

type yamlSector struct {
	ID         string   `yaml:"id"`
	Label      string   `yaml:"label"`
	Prompt     string   `yaml:"prompt"`
	Endpoints  []string `yaml:"endpoints"`
	Tickets    bool     `yaml:"tickets"`
	InternalDB bool     `yaml:"internal_db"`
	Kanban     bool     `yaml:"kanban"`
}

type yamlTable struct {
	Default   string                  `yaml:"default"`
	Endpoints map[string]yamlEndpoint `yaml:"endpoints"`
	Sectors   []yamlSector            `yaml:"sectors"`
}

// Registry is a read-only lookup of sectors and endpoints.
// Safe for concurrent use; nothing mutates it after construction.
type Registry struct {
	defaultID string
	sectors   map[string]domain.SectorProfile
	order     []string
	endpoints map[string]domain.EndpointConfig
}

// Load parses the embedded sector table.
func Load() (*Registry, error) {
	return Parse(embeddedTable)
}

// Parse builds a Registry from a YAML document.
func Parse(data []byte) (*Registry, error) {
	var t yamlTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse sector table: %w", err)
	}

	r := &Registry{
		defaultID: strings.ToLower(strings.TrimSpace(t.Default)),
		sectors:   make(map[string]domain.SectorProfile, len(t.Sectors)),
		endpoints: make(map[string]domain.EndpointConfig, len(t.Endpoints)),
	}
	if r.defaultID == "" {
		r.defaultID = domain.DefaultSectorID
	}

	for name, e := range t.Endpoints {
		if e.Path == "" {
			return nil, fmt.Errorf("endpoint %q: path is required", name)
		}
		if e.DateRange && (e.StartParam == "" || e.EndParam == "") {
			return nil, fmt.Errorf("endpoint %q: date_range requires start_param and end_param", name)
		}
		cfg := domain.EndpointConfig{
			Name:           name,
			Label:          e.Label,
			Path:           e.Path,
			PageParam:      e.PageParam,
			PageSizeParam:  e.PageSizeParam,
			UsesDateRange:  e.DateRange,
			StartDateParam: e.StartParam,
			EndDateParam:   e.EndParam,
		}
		if cfg.Label == "" {
			cfg.Label = strings.ToUpper(name)
		}
		if cfg.PageParam == "" {
			cfg.PageParam = "page"
		}
		if cfg.PageSizeParam == "" {
			cfg.PageSizeParam = "pageSize"
		}
		r.endpoints[name] = cfg
	}

	for _, s := range t.Sectors {
		id := strings.ToLower(strings.TrimSpace(s.ID))
		if id == "" {
			return nil, fmt.Errorf("sector without id")
		}
		if _, dup := r.sectors[id]; dup {
			return nil, fmt.Errorf("sector %q declared twice", id)
		}
		for _, ep := range s.Endpoints {
			if _, ok := r.endpoints[ep]; !ok {
				return nil, fmt.Errorf("sector %q references unknown endpoint %q", id, ep)
			}
		}
		r.sectors[id] = domain.SectorProfile{
			ID:             id,
			Label:          s.Label,
			SystemPrompt:   strings.TrimSpace(s.Prompt),
			Endpoints:      append([]string(nil), s.Endpoints...),
			UsesTickets:    s.Tickets,
			UsesInternalDB: s.InternalDB,
			UsesKanban:     s.Kanban,
		}
		r.order = append(r.order, id)
	}

	if _, ok := r.sectors[r.defaultID]; !ok {
		return nil, fmt.Errorf("default sector %q is not declared", r.defaultID)
	}
	return r, nil
}

// Resolve returns the profile for sectorID. Unknown or empty ids resolve to
// the default (orquestrador) profile; it never fails.
func (r *Registry) Resolve(sectorID string) domain.SectorProfile {
	p, ok := r.sectors[strings.ToLower(strings.TrimSpace(sectorID))]
	if !ok {
		p = r.sectors[r.defaultID]
	}
	p.Endpoints = append([]string(nil), p.Endpoints...)
	return p
}

// Endpoint returns the config of a named endpoint.
func (r *Registry) Endpoint(name string) (domain.EndpointConfig, bool) {
	e, ok := r.endpoints[name]
	return e, ok
}

// Sectors lists sector ids in declaration order.
func (r *Registry) Sectors() []string {
	return append([]string(nil), r.order...)
}

// Default returns the fallback sector id.
func (r *Registry) Default() string {
	return r.defaultID
}
