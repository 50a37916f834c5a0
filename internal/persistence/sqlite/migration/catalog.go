package migration

import (
	"fmt"
	"sort"
	"strings"
)

// Catalog is the ordered, read-only set of scripts known to a build.
type Catalog struct {
	forward  []Script
	backward map[int64]Script
}

// NewCatalog validates scripts and orders them by version. Declaration order
// does not matter. Versions must be positive and unique per direction, and
// every backward script needs a forward script with the same version.
func NewCatalog(scripts ...Script) (*Catalog, error) {
	c := &Catalog{backward: make(map[int64]Script)}
	seen := make(map[int64]string)

	for _, script := range scripts {
		if script.Version <= 0 {
			return nil, fmt.Errorf("%w: version %d must be positive", ErrInvalidScript, script.Version)
		}
		if err := validateSQLSyntax(script.SQL); err != nil {
			return nil, fmt.Errorf("migration %d (%s): %w", script.Version, script.Direction, err)
		}
		script.Checksum = calculateChecksum(script.SQL)

		switch script.Direction {
		case Forward:
			if existing, ok := seen[script.Version]; ok {
				return nil, fmt.Errorf("%w: version %d used by %q and %q",
					ErrDuplicateVersion, script.Version, existing, script.Description)
			}
			seen[script.Version] = script.Description
			c.forward = append(c.forward, script)
		case Backward:
			if _, ok := c.backward[script.Version]; ok {
				return nil, fmt.Errorf("%w: backward version %d declared twice", ErrDuplicateVersion, script.Version)
			}
			c.backward[script.Version] = script
		default:
			return nil, fmt.Errorf("%w: version %d has unknown direction %d", ErrInvalidScript, script.Version, script.Direction)
		}
	}

	for version := range c.backward {
		if _, ok := seen[version]; !ok {
			return nil, fmt.Errorf("%w: backward script %d has no forward script", ErrInvalidScript, version)
		}
	}

	sort.Slice(c.forward, func(i, j int) bool {
		return c.forward[i].Version < c.forward[j].Version
	})

	return c, nil
}

// MustCatalog is like NewCatalog but panics on error. It is meant for
// package-level catalog variables so a broken script fails at init.
func MustCatalog(scripts ...Script) *Catalog {
	c, err := NewCatalog(scripts...)
	if err != nil {
		panic(fmt.Sprintf("migration: invalid catalog: %v", err))
	}
	return c
}

// Forward returns a copy of the forward scripts in ascending version order.
func (c *Catalog) Forward() []Script {
	if c == nil {
		return nil
	}
	out := make([]Script, len(c.forward))
	copy(out, c.forward)
	return out
}

// Len returns the number of forward scripts.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.forward)
}

// Max returns the highest forward version, or 0 for an empty catalog.
func (c *Catalog) Max() int64 {
	if c.Len() == 0 {
		return 0
	}
	return c.forward[len(c.forward)-1].Version
}

// Lookup returns the forward script with the given version.
func (c *Catalog) Lookup(version int64) (Script, bool) {
	if c == nil {
		return Script{}, false
	}
	i := sort.Search(len(c.forward), func(i int) bool { return c.forward[i].Version >= version })
	if i < len(c.forward) && c.forward[i].Version == version {
		return c.forward[i], true
	}
	return Script{}, false
}

// Backward returns the backward script for version, if one exists.
func (c *Catalog) Backward(version int64) (Script, bool) {
	if c == nil {
		return Script{}, false
	}
	script, ok := c.backward[version]
	return script, ok
}

// Pending returns forward scripts with a version strictly greater than after.
func (c *Catalog) Pending(after int64) []Script {
	if c == nil {
		return nil
	}
	i := sort.Search(len(c.forward), func(i int) bool { return c.forward[i].Version > after })
	out := make([]Script, len(c.forward)-i)
	copy(out, c.forward[i:])
	return out
}

// String lists the catalog versions, mostly for logs.
func (c *Catalog) String() string {
	parts := make([]string, 0, c.Len())
	for _, script := range c.Forward() {
		parts = append(parts, fmt.Sprintf("%d_%s", script.Version, script.Description))
	}
	return "[" + strings.Join(parts, " ") + "]"
}
