package milestone

import "encoding/json"

// Flag names one milestone predicate. The set is closed.
type Flag int

// Milestone flags in report column order.
const (
	FlagOwned Flag = iota
	FlagE1
	FlagE2
	FlagMaxLevel
	FlagS1M3
	FlagS2M3
	FlagS3M3
	FlagAllM3
	FlagModX3
	FlagModY3
	FlagModD3
	FlagPot6
	flagCount
)

// NumFlags is the size of the flag set.
const NumFlags = int(flagCount)

var flagNames = [NumFlags]string{
	"owned",
	"E1",
	"E2",
	"max-lvl",
	"S1M3",
	"S2M3",
	"S3M3",
	"all-M3",
	"mod-X3",
	"mod-Y3",
	"mod-D3",
	"pot-6",
}

func (f Flag) String() string {
	if f < 0 || f >= flagCount {
		return "unknown"
	}
	return flagNames[f]
}

// ParseFlag looks a flag up by its column name.
func ParseFlag(name string) (Flag, bool) {
	for i, n := range flagNames {
		if n == name {
			return Flag(i), true
		}
	}
	return 0, false
}

// AllFlags returns every flag in column order.
func AllFlags() []Flag {
	out := make([]Flag, NumFlags)
	for i := range out {
		out[i] = Flag(i)
	}
	return out
}

// Names returns the column names of flags.
func Names(flags []Flag) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = f.String()
	}
	return out
}

// Flags is the outcome of evaluating one roster entry.
type Flags [NumFlags]bool

// Get returns the value of f.
func (fs Flags) Get(f Flag) bool { return fs[f] }

// Any reports whether at least one flag is set.
func (fs Flags) Any() bool {
	for _, v := range fs {
		if v {
			return true
		}
	}
	return false
}

// Map renders the flags keyed by column name.
func (fs Flags) Map() map[string]bool {
	out := make(map[string]bool, NumFlags)
	for i, v := range fs {
		out[flagNames[i]] = v
	}
	return out
}

// MarshalJSON encodes the flags as an object keyed by column name.
func (fs Flags) MarshalJSON() ([]byte, error) {
	return json.Marshal(fs.Map())
}
