// Package platformconfig defines the typed platform configuration the
// invariant monitor validates (spec.md §4.6 invariants 7 and 8). The
// authoritative YAML configuration parser — the one that reads the
// bootloader's config blob in production, handles every platform's
// dialect, and feeds the static-module loader — is an external
// collaborator per spec.md §1. This package only carries the typed shape
// the core needs and a minimal loader so invariants 7/8 have something
// concrete to check in this repository's own tests and demo.
package platformconfig

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type MemoryRegion struct {
	Base uint64 `yaml:"base"`
	Size uint64 `yaml:"size"`
}

type IRQEntry struct {
	Vector  uint32 `yaml:"vector"`
	Domain  int32  `yaml:"domain"`
	Handler string `yaml:"handler"`
}

// Config is the parsed platform configuration blob, per spec.md §6.
type Config struct {
	UARTBase      uint64         `yaml:"uart_base"`
	UARTBaud      uint32         `yaml:"uart_baud"`
	MaxDomains    int            `yaml:"max_domains"`
	CapTableSize  int            `yaml:"cap_table_size"`
	MemoryRegions []MemoryRegion `yaml:"memory_regions"`
	IRQTable      []IRQEntry     `yaml:"irq_table"`
}

// Parse decodes a YAML platform config blob.
func Parse(blob []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(blob, &c); err != nil {
		return Config{}, errors.Wrap(err, "platformconfig: decode")
	}
	return c, nil
}

// Valid implements invariant 7 (config integrity): bounded, sane field
// values. It does not check cross-resource collisions — that is
// invariant 8, Disjoint.
func (c Config) Valid() bool {
	if c.MaxDomains <= 0 || c.MaxDomains > 65536 {
		return false
	}
	if c.CapTableSize <= 0 || c.CapTableSize > 1<<20 {
		return false
	}
	for _, r := range c.MemoryRegions {
		if r.Size == 0 {
			return false
		}
		if r.Base+r.Size < r.Base {
			return false // overflow
		}
	}
	for _, e := range c.IRQTable {
		if e.Vector > 255 {
			return false
		}
		if e.Handler == "" {
			return false
		}
	}
	return true
}

// Disjoint implements invariant 8: no two config-derived resources (UART
// base, memory regions) collide. IRQ vectors are checked for duplicate
// assignment as part of the same disjointness property.
func (c Config) Disjoint() bool {
	regions := append([]MemoryRegion{}, c.MemoryRegions...)
	for i := 0; i < len(regions); i++ {
		if uartInRange(c.UARTBase, regions[i]) {
			return false
		}
		for j := i + 1; j < len(regions); j++ {
			if rangesOverlap(regions[i], regions[j]) {
				return false
			}
		}
	}
	seen := make(map[uint32]bool, len(c.IRQTable))
	for _, e := range c.IRQTable {
		if seen[e.Vector] {
			return false
		}
		seen[e.Vector] = true
	}
	return true
}

func rangesOverlap(a, b MemoryRegion) bool {
	aEnd := a.Base + a.Size
	bEnd := b.Base + b.Size
	return a.Base < bEnd && b.Base < aEnd
}

func uartInRange(uart uint64, r MemoryRegion) bool {
	return uart >= r.Base && uart < r.Base+r.Size
}
