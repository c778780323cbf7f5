package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

var ErrInvalidCatalog = errors.New("invalid constraint catalog")

// TypeSpec declares an entity type, the attributes forming its identity
// key and its constraints.
type TypeSpec struct {
	Name        string       `yaml:"name" json:"name"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	Keys        []string     `yaml:"keys" json:"keys"`
	Attributes  []string     `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Constraints []Constraint `yaml:"constraints,omitempty" json:"constraints,omitempty"`
}

// RelationSpec declares a relationship type. Source and Target become an
// implicit endpoints constraint evaluated before the explicit ones.
type RelationSpec struct {
	Name        string       `yaml:"name" json:"name"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	Source      []string     `yaml:"source" json:"source"`
	Target      []string     `yaml:"target" json:"target"`
	Constraints []Constraint `yaml:"constraints,omitempty" json:"constraints,omitempty"`
}

// Definition is the serialized form of a catalog.
type Definition struct {
	Version   int64          `yaml:"version" json:"version"`
	Entities  []TypeSpec     `yaml:"entities" json:"entities"`
	Relations []RelationSpec `yaml:"relations" json:"relations"`
}

// Catalog supplies the active constraint set. Implementations must be safe
// for concurrent use; a reload swaps the whole set at once.
type Catalog interface {
	ConstraintsFor(typeName string) []Constraint
	KeysFor(typeName string) []string
	HasType(typeName string) bool
	Definition() Definition
	Version() int64
}

// StaticCatalog is an immutable, compiled Definition.
type StaticCatalog struct {
	def         Definition
	constraints map[string][]Constraint
	keys        map[string][]string
}

// ParseDefinition decodes a YAML catalog.
func ParseDefinition(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return def, nil
}

// LoadFile reads and compiles a YAML catalog from disk.
func LoadFile(path string) (*StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, err
	}
	return NewStaticCatalog(def)
}

// DefaultCatalog returns the built-in safety domain catalog.
func DefaultCatalog() *StaticCatalog {
	def, err := ParseDefinition(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	cat, err := NewStaticCatalog(def)
	if err != nil {
		panic(err)
	}
	return cat
}

// NewStaticCatalog validates def and compiles its patterns.
func NewStaticCatalog(def Definition) (*StaticCatalog, error) {
	c := &StaticCatalog{
		def:         def,
		constraints: make(map[string][]Constraint),
		keys:        make(map[string][]string),
	}

	for _, t := range def.Entities {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: entity type without name", ErrInvalidCatalog)
		}
		if _, dup := c.constraints[t.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate type %s", ErrInvalidCatalog, t.Name)
		}
		if len(t.Keys) == 0 {
			return nil, fmt.Errorf("%w: type %s declares no identity keys", ErrInvalidCatalog, t.Name)
		}
		compiled, err := compileAll(t.Name, t.Constraints)
		if err != nil {
			return nil, err
		}
		c.constraints[t.Name] = compiled
		c.keys[t.Name] = append([]string(nil), t.Keys...)
	}

	for _, r := range def.Relations {
		if r.Name == "" {
			return nil, fmt.Errorf("%w: relation type without name", ErrInvalidCatalog)
		}
		if _, dup := c.constraints[r.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate type %s", ErrInvalidCatalog, r.Name)
		}
		all := r.Constraints
		if len(r.Source) > 0 || len(r.Target) > 0 {
			all = append([]Constraint{{Kind: KindEndpoints, Source: r.Source, Target: r.Target}}, all...)
		}
		compiled, err := compileAll(r.Name, all)
		if err != nil {
			return nil, err
		}
		c.constraints[r.Name] = compiled
	}
	return c, nil
}

func compileAll(typeName string, in []Constraint) ([]Constraint, error) {
	out := make([]Constraint, len(in))
	for i, con := range in {
		if err := con.compile(); err != nil {
			return nil, fmt.Errorf("%w: %s constraint %d: %v", ErrInvalidCatalog, typeName, i, err)
		}
		out[i] = con
	}
	return out, nil
}

func (c *StaticCatalog) ConstraintsFor(typeName string) []Constraint {
	return c.constraints[typeName]
}

func (c *StaticCatalog) KeysFor(typeName string) []string {
	return c.keys[typeName]
}

func (c *StaticCatalog) HasType(typeName string) bool {
	_, ok := c.constraints[typeName]
	return ok
}

func (c *StaticCatalog) Definition() Definition {
	return c.def
}

func (c *StaticCatalog) Version() int64 {
	return c.def.Version
}

// ReloadableCatalog delegates to a StaticCatalog that can be replaced at
// runtime. Every swap bumps the version.
type ReloadableCatalog struct {
	current atomic.Pointer[StaticCatalog]
}

func NewReloadableCatalog(initial *StaticCatalog) *ReloadableCatalog {
	r := &ReloadableCatalog{}
	r.current.Store(initial)
	return r
}

// Swap compiles def and makes it the active catalog. The new version is
// def.Version or one more than the previous version, whichever is larger.
func (r *ReloadableCatalog) Swap(def Definition) (int64, error) {
	prev := r.current.Load()
	if prev != nil && def.Version <= prev.Version() {
		def.Version = prev.Version() + 1
	}
	next, err := NewStaticCatalog(def)
	if err != nil {
		return 0, err
	}
	r.current.Store(next)
	return def.Version, nil
}

func (r *ReloadableCatalog) load() *StaticCatalog {
	return r.current.Load()
}

func (r *ReloadableCatalog) ConstraintsFor(typeName string) []Constraint {
	return r.load().ConstraintsFor(typeName)
}

func (r *ReloadableCatalog) KeysFor(typeName string) []string {
	return r.load().KeysFor(typeName)
}

func (r *ReloadableCatalog) HasType(typeName string) bool {
	return r.load().HasType(typeName)
}

func (r *ReloadableCatalog) Definition() Definition {
	return r.load().Definition()
}

func (r *ReloadableCatalog) Version() int64 {
	return r.load().Version()
}

// Snapshot returns the catalog active right now. Use it to validate a whole
// record against one consistent version.
func (r *ReloadableCatalog) Snapshot() Catalog {
	return r.load()
}

// Snapshot pins the active version of c when c supports reloads.
func Snapshot(c Catalog) Catalog {
	if s, ok := c.(interface{ Snapshot() Catalog }); ok {
		return s.Snapshot()
	}
	return c
}
