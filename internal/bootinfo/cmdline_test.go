package bootinfo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCmdLineScenario6(t *testing.T) {
	c := ParseCmdLine("debug noapic mem=512M console=ttyS0,9600")

	require.True(t, c.Debug)
	require.True(t, c.NoAPIC)
	require.False(t, c.Quiet)
	require.Equal(t, uint64(512)<<20, c.MemLimit)
	require.Equal(t, "ttyS0", c.ConsolePort)
	require.Equal(t, uint32(9600), c.ConsoleBaud)
	require.Empty(t, c.Unknown)

	port, ok := SerialPortForTTY(c.ConsolePort)
	require.True(t, ok)
	require.Equal(t, uint16(0x3F8), port)
}

func TestParseCmdLineUnknownTokensAreCollectedNotRejected(t *testing.T) {
	c := ParseCmdLine("debug frobnicate=1 quiet")
	require.True(t, c.Debug)
	require.True(t, c.Quiet)
	require.Equal(t, []string{"frobnicate=1"}, c.Unknown)
}

func TestParseCmdLineBareTTY0(t *testing.T) {
	c := ParseCmdLine("console=tty0")
	require.Equal(t, "tty0", c.ConsolePort)
	require.Equal(t, uint32(0), c.ConsoleBaud)
}

func TestParseMemSizeGigabytes(t *testing.T) {
	c := ParseCmdLine("mem=2G")
	require.Equal(t, uint64(2)<<30, c.MemLimit)
}
