package core

import (
	"sync"

	"spimhal/tinycompress"
)

// Version is reported in the console dictionary
const Version = "spimhal-0.1.0"

// Dictionary is the JSON description of the console a host downloads with
// identify: version, constants, and the ID of every command and response.
// identify serves it zlib-wrapped.
type Dictionary struct {
	mu         sync.RWMutex
	registry   *CommandRegistry
	version    string
	constants  map[string]uint32
	cached     []byte
	compressed []byte
}

// NewDictionary describes the commands held by registry
func NewDictionary(registry *CommandRegistry) *Dictionary {
	return &Dictionary{
		registry:  registry,
		version:   Version,
		constants: make(map[string]uint32),
	}
}

// AddConstant publishes a platform constant such as DMA_MAX
func (d *Dictionary) AddConstant(name string, value uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = value
	d.invalidate()
}

// SetVersion overrides the reported firmware version
func (d *Dictionary) SetVersion(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
	d.invalidate()
}

func (d *Dictionary) invalidate() {
	d.cached = nil
	d.compressed = nil
}

// JSON returns the dictionary, building it on first use after a change.
// Register every command before the first identify.
func (d *Dictionary) JSON() []byte {
	// Fetch commands before taking our own lock.
	commands := d.registry.Commands()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached == nil {
		d.cached = d.build(commands)
	}
	return d.cached
}

// Data returns the zlib stream of JSON as served by identify.
func (d *Dictionary) Data() []byte {
	commands := d.registry.Commands()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached == nil {
		d.cached = d.build(commands)
	}
	if d.compressed == nil {
		d.compressed = tinycompress.Store(nil, d.cached)
	}
	return d.compressed
}

func (d *Dictionary) build(commands []*Command) []byte {
	out := make([]byte, 0, 1024)
	out = append(out, `{"version":`...)
	out = appendQuoted(out, d.version)
	out = append(out, `,"config":{`...)

	names := make([]string, 0, len(d.constants))
	for name := range d.constants {
		names = append(names, name)
	}
	// insertion sort; the list is a handful of entries
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	for i, name := range names {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendQuoted(out, name)
		out = append(out, ':')
		out = appendQuoted(out, utoa(d.constants[name]))
	}

	out = append(out, `},"commands":{`...)
	out = appendEntries(out, commands, false)
	out = append(out, `},"responses":{`...)
	out = appendEntries(out, commands, true)
	out = append(out, "}}"...)
	return out
}

func appendEntries(out []byte, commands []*Command, responses bool) []byte {
	first := true
	for _, cmd := range commands {
		if cmd.IsResponse() != responses {
			continue
		}
		if !first {
			out = append(out, ',')
		}
		first = false
		out = appendQuoted(out, cmd.Signature())
		out = append(out, ':')
		out = append(out, itoa(int(cmd.ID))...)
	}
	return out
}

func appendQuoted(out []byte, s string) []byte {
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return append(out, '"')
}

// Chunk returns up to count bytes of Data starting at offset. An offset at
// or past the end yields an empty chunk.
func (d *Dictionary) Chunk(offset uint32, count uint8) []byte {
	data := d.Data()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}
	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}
