// ABOUTME: LoadYAML builds a domain.DomainDiagram from a compact YAML fixture, for tests and
// ABOUTME: the cmd/dipeoengine sample runner — production surface-format parsing is out of scope.
package testdiagram

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dipeo/dipeo-engine/domain"
)

// yamlPosition mirrors domain.Position for decoding.
type yamlPosition struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// yamlNode is one node entry in the surface format.
type yamlNode struct {
	ID       string         `yaml:"id"`
	Type     string         `yaml:"type"`
	Position yamlPosition   `yaml:"position"`
	Data     map[string]any `yaml:"data"`
}

// yamlHandle is one explicit handle entry. Most diagrams never need this:
// arrows may instead reference "<node>:<label>" shorthand (see
// splitShorthand) and LoadYAML synthesizes the handle pair itself.
type yamlHandle struct {
	ID        string `yaml:"id"`
	NodeID    string `yaml:"node_id"`
	Label     string `yaml:"label"`
	Direction string `yaml:"direction"`
	DataType  string `yaml:"data_type"`
	Position  int    `yaml:"position"`
}

// yamlArrow is one connection. Source/Target accept either a full
// structural handle ID ("n1_default_output") or the "node:label" shorthand,
// which LoadYAML expands and fills in a DataTypeAny handle for if one was
// not declared explicitly.
type yamlArrow struct {
	ID          string         `yaml:"id"`
	Source      string         `yaml:"source"`
	Target      string         `yaml:"target"`
	ContentType string         `yaml:"content_type"`
	Label       string         `yaml:"label"`
	Data        map[string]any `yaml:"data"`
}

// yamlPerson is one PERSON_JOB participant configuration.
type yamlPerson struct {
	ID           string `yaml:"id"`
	Model        string `yaml:"model"`
	Service      string `yaml:"service"`
	ApiKeyID     string `yaml:"api_key_id"`
	SystemPrompt string `yaml:"system_prompt"`
}

// yamlMetadata mirrors domain.DiagramMetadata.
type yamlMetadata struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// yamlDiagram is the top-level document shape.
type yamlDiagram struct {
	Metadata yamlMetadata `yaml:"metadata"`
	Nodes    []yamlNode   `yaml:"nodes"`
	Handles  []yamlHandle `yaml:"handles"`
	Arrows   []yamlArrow  `yaml:"arrows"`
	Persons  []yamlPerson `yaml:"persons"`
}

// LoadYAML decodes raw as a yamlDiagram document and converts it to a
// domain.DomainDiagram, synthesizing any "node:label" shorthand handles an
// arrow references but no yamlHandle entry declares.
func LoadYAML(raw []byte) (domain.DomainDiagram, error) {
	var doc yamlDiagram
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return domain.DomainDiagram{}, fmt.Errorf("diagramio: parse yaml: %w", err)
	}
	return fromDocument(doc)
}

func fromDocument(doc yamlDiagram) (domain.DomainDiagram, error) {
	d := domain.NewDomainDiagram()
	d.Metadata = domain.DiagramMetadata{
		ID:      domain.DiagramID(doc.Metadata.ID),
		Name:    doc.Metadata.Name,
		Version: doc.Metadata.Version,
	}

	for _, n := range doc.Nodes {
		id := domain.NodeID(n.ID)
		d.Nodes[id] = domain.DomainNode{
			ID:       id,
			Type:     domain.NodeType(n.Type),
			Position: domain.Position{X: n.Position.X, Y: n.Position.Y},
			Data:     n.Data,
		}
	}

	for _, h := range doc.Handles {
		id := domain.HandleID(h.ID)
		dt := domain.DataType(h.DataType)
		if dt == "" {
			dt = domain.DataTypeAny
		}
		dir := domain.Direction(h.Direction)
		d.Handles[id] = domain.DomainHandle{
			ID:        domain.MakeHandleID(domain.NodeID(h.NodeID), h.Label, dir),
			NodeID:    domain.NodeID(h.NodeID),
			Label:     h.Label,
			Direction: dir,
			DataType:  dt,
			Position:  h.Position,
		}
	}

	for _, p := range doc.Persons {
		id := domain.PersonID(p.ID)
		d.Persons[id] = domain.DomainPerson{
			ID:           id,
			Model:        p.Model,
			Service:      p.Service,
			ApiKeyID:     domain.ApiKeyID(p.ApiKeyID),
			SystemPrompt: p.SystemPrompt,
		}
	}

	for _, a := range doc.Arrows {
		srcID, err := resolveEndpoint(d, a.Source, domain.DirectionOutput)
		if err != nil {
			return domain.DomainDiagram{}, fmt.Errorf("diagramio: arrow %q: %w", a.ID, err)
		}
		tgtID, err := resolveEndpoint(d, a.Target, domain.DirectionInput)
		if err != nil {
			return domain.DomainDiagram{}, fmt.Errorf("diagramio: arrow %q: %w", a.ID, err)
		}
		ct := domain.ContentType(a.ContentType)
		if ct == "" {
			ct = domain.ContentTypeGeneric
		}
		if a.ID == "" {
			// Fixture authors may omit arrow ids; mint one so the
			// diagram still satisfies the unique-arrow-id invariant.
			a.ID = "arrow-" + uuid.NewString()
		}
		id := domain.ArrowID(a.ID)
		d.Arrows[id] = domain.DomainArrow{
			ID:          id,
			Source:      srcID,
			Target:      tgtID,
			ContentType: ct,
			Label:       a.Label,
			Data:        a.Data,
		}
	}

	return d, nil
}

// resolveEndpoint returns the structural HandleID for ref, which may
// already be one ("n1_default_output") or the "node:label" shorthand
// ("n1:default"). Shorthand references that have no matching handle yet
// get one synthesized with DataTypeAny, since the author only meant to
// name the port, not its type.
func resolveEndpoint(d domain.DomainDiagram, ref string, dir domain.Direction) (domain.HandleID, error) {
	if _, ok := d.Handles[domain.HandleID(ref)]; ok {
		return domain.HandleID(ref), nil
	}

	nodeID, label, ok := splitShorthand(ref)
	if !ok {
		return "", fmt.Errorf("endpoint %q is neither a declared handle nor a valid node:label reference", ref)
	}
	if label == "" {
		label = domain.HandleLabelDefault
	}
	id := domain.MakeHandleID(nodeID, label, dir)
	if _, ok := d.Handles[id]; !ok {
		d.Handles[id] = domain.DomainHandle{
			ID:        id,
			NodeID:    nodeID,
			Label:     label,
			Direction: dir,
			DataType:  domain.DataTypeAny,
		}
	}
	return id, nil
}

// splitShorthand splits a "node:label" or bare "node" reference.
func splitShorthand(ref string) (domain.NodeID, string, bool) {
	if ref == "" {
		return "", "", false
	}
	if idx := strings.Index(ref, ":"); idx >= 0 {
		return domain.NodeID(ref[:idx]), ref[idx+1:], true
	}
	return domain.NodeID(ref), "", true
}
