package platformconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
uart_base: 0x3F8
uart_baud: 9600
max_domains: 128
cap_table_size: 65536
memory_regions:
  - { base: 0x100000, size: 0x3FF00000 }
irq_table:
  - { vector: 33, domain: 2, handler: "net0_irq" }
`

func TestParseAndValidate(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	require.True(t, c.Valid())
	require.True(t, c.Disjoint())
	require.Equal(t, 128, c.MaxDomains)
	require.Len(t, c.IRQTable, 1)
}

func TestInvalidRejectsZeroCapTable(t *testing.T) {
	c := Config{MaxDomains: 1, CapTableSize: 0}
	require.False(t, c.Valid())
}

func TestDisjointDetectsOverlappingRegions(t *testing.T) {
	c := Config{
		MaxDomains:   1,
		CapTableSize: 1,
		MemoryRegions: []MemoryRegion{
			{Base: 0x1000, Size: 0x2000},
			{Base: 0x1500, Size: 0x1000},
		},
	}
	require.True(t, c.Valid())
	require.False(t, c.Disjoint())
}

func TestDisjointDetectsDuplicateIRQVector(t *testing.T) {
	c := Config{
		MaxDomains:   1,
		CapTableSize: 1,
		IRQTable: []IRQEntry{
			{Vector: 5, Domain: 1, Handler: "a"},
			{Vector: 5, Domain: 2, Handler: "b"},
		},
	}
	require.False(t, c.Disjoint())
}

func TestDisjointDetectsUARTInsideMemoryRegion(t *testing.T) {
	c := Config{
		MaxDomains:   1,
		CapTableSize: 1,
		UARTBase:     0x1800,
		MemoryRegions: []MemoryRegion{
			{Base: 0x1000, Size: 0x2000},
			{Base: 0x4000, Size: 0x1000},
		},
	}
	require.False(t, c.Disjoint())
}
