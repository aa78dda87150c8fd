// Package scenario replays scripted event streams through a real session.
//
// A scenario is a TOML file listing steps (region markers and kernel events)
// and, optionally, the totals or the error the engine must produce:
//
//	name = "one migration"
//	cpus = 2
//	counters = 1
//
//	[[step]]
//	op = "open"
//	region = "a"
//	cpu = 0
//	thread = 7
//
//	[[step]]
//	op = "switch"
//	cpu = 0
//	cycles = 1500
//	counters = [500]
//	from = 7
//	to = 0
//
//	[expect.a]
//	counters = [650]
//	switches = 1
package scenario

import (
	"fmt"
	"os"
	"slices"

	"github.com/BurntSushi/toml"

	"pmctrace/internal/pmc"
)

// Step operations.
const (
	OpOpen   = "open"
	OpClose  = "close"
	OpEnter  = "enter"
	OpExit   = "exit"
	OpSwitch = "switch"
	OpRaw    = "raw"
)

// Step is one scripted event.
type Step struct {
	Op     string `toml:"op"`
	CPU    uint32 `toml:"cpu"`
	Cycles uint64 `toml:"cycles"`

	// open/close
	Region string `toml:"region"`
	Thread uint32 `toml:"thread"`

	// enter/exit/switch
	Counters []uint64 `toml:"counters"`

	// switch
	From uint32 `toml:"from"`
	To   uint32 `toml:"to"`

	// raw: an arbitrary event, for malformed-stream cases
	Provider string `toml:"provider"`
	Opcode   uint8  `toml:"opcode"`
	Payload  []byte `toml:"payload"`
}

// Expectation describes a region's required outcome. Unset fields are not
// checked.
type Expectation struct {
	Complete *bool    `toml:"complete"`
	Counters []uint64 `toml:"counters"`
	Cycles   *uint64  `toml:"cycles"`
	Switches *uint64  `toml:"switches"`
}

// ErrorExpectation requires a latched error of Kind whose message contains
// Message.
type ErrorExpectation struct {
	Kind    string `toml:"kind"`
	Message string `toml:"message"`
}

// Scenario is a parsed scenario file.
type Scenario struct {
	Name        string                 `toml:"name"`
	Description string                 `toml:"description"`
	CPUs        int                    `toml:"cpus"`
	Counters    int                    `toml:"counters"`
	Steps       []Step                 `toml:"step"`
	Expect      map[string]Expectation `toml:"expect"`
	Error       *ErrorExpectation      `toml:"expect_error"`
}

// Load parses and validates the scenario at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = path
	}
	return sc, nil
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	sc := &Scenario{CPUs: 1, Counters: 1}
	md, err := toml.Decode(string(data), sc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown scenario keys: %v", undecoded)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

var providers = map[string]pmc.Provider{
	"marker":  pmc.ProviderMarker,
	"thread":  pmc.ProviderThread,
	"syscall": pmc.ProviderSyscall,
	"unknown": pmc.ProviderUnknown,
}

var errorKinds = []string{
	pmc.ConfigurationError.String(),
	pmc.SessionError.String(),
	pmc.ProtocolError.String(),
	pmc.ResourceError.String(),
}

// Validate checks step shapes. It does not check that the stream is legal;
// illegal streams are what error expectations are for.
func (sc *Scenario) Validate() error {
	if sc.CPUs < 1 {
		return fmt.Errorf("cpus must be at least 1")
	}
	if sc.Counters < 1 || sc.Counters > pmc.MaxCounters {
		return fmt.Errorf("counters must be within 1..%d", pmc.MaxCounters)
	}
	opened := map[string]bool{}
	for i, st := range sc.Steps {
		switch st.Op {
		case OpOpen:
			if st.Region == "" {
				return fmt.Errorf("step %d: open needs a region", i+1)
			}
			opened[st.Region] = true
		case OpClose:
			if !opened[st.Region] {
				return fmt.Errorf("step %d: region %q closed before it was opened", i+1, st.Region)
			}
		case OpEnter, OpExit, OpSwitch:
		case OpRaw:
			if _, ok := providers[st.Provider]; !ok {
				return fmt.Errorf("step %d: unknown provider %q", i+1, st.Provider)
			}
		default:
			return fmt.Errorf("step %d: unknown op %q", i+1, st.Op)
		}
	}
	for name, exp := range sc.Expect {
		if !opened[name] {
			return fmt.Errorf("expectation for region %q that is never opened", name)
		}
		if exp.Counters != nil && len(exp.Counters) != sc.Counters {
			return fmt.Errorf("expectation for region %q lists %d counters, scenario has %d",
				name, len(exp.Counters), sc.Counters)
		}
	}
	if sc.Error != nil && !slices.Contains(errorKinds, sc.Error.Kind) {
		return fmt.Errorf("expect_error.kind %q must be one of %v", sc.Error.Kind, errorKinds)
	}
	return nil
}

// Regions returns region names in order of first open.
func (sc *Scenario) Regions() []string {
	var names []string
	for _, st := range sc.Steps {
		if st.Op == OpOpen && !slices.Contains(names, st.Region) {
			names = append(names, st.Region)
		}
	}
	return names
}

func (st Step) event() pmc.Event {
	switch st.Op {
	case OpEnter:
		return pmc.SyscallEnterEvent(st.CPU, st.Cycles, st.Counters)
	case OpExit:
		return pmc.SyscallExitEvent(st.CPU, st.Cycles, st.Counters)
	case OpSwitch:
		return pmc.ThreadSwitchEvent(st.CPU, st.Cycles, st.Counters, st.From, st.To)
	default:
		ev := pmc.Event{
			Provider:  providers[st.Provider],
			Opcode:    st.Opcode,
			CPU:       st.CPU,
			Timestamp: st.Cycles,
			Counters:  st.Counters,
			Payload:   st.Payload,
		}
		if st.Counters != nil {
			ev.CounterSets = 1
		}
		return ev
	}
}
