package mcu

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"spimhal/host/serial"
	"spimhal/protocol"
)

// identify is the one command whose IDs are fixed; everything else is
// looked up in the dictionary it returns.
const (
	identifyResponseID = 0
	identifyID         = 1
	identifyChunk      = 40
)

// ErrNotConnected is returned by every call made before Connect
var ErrNotConnected = errors.New("not connected to MCU")

// MCU represents a connection to the diagnostic console of a device
type MCU struct {
	// Transport layer
	transport *protocol.HostTransport

	// Dictionary data
	dictionary     *Dictionary
	dictionaryData []byte
	commandIDs     map[string]uint16
	responseIDs    map[string]uint16

	// Connection state
	connected bool
	timeout   time.Duration

	log zerolog.Logger
}

// Dictionary represents the parsed console dictionary
type Dictionary struct {
	Version   string            `json:"version"`
	Config    map[string]string `json:"config"`
	Commands  map[string]int    `json:"commands"`
	Responses map[string]int    `json:"responses"`
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU() *MCU {
	return &MCU{timeout: time.Second, log: zerolog.Nop()}
}

// SetLogger replaces the default no-op logger
func (m *MCU) SetLogger(l zerolog.Logger) {
	m.log = l
}

// Connect connects to an MCU via serial port
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig connects to an MCU with a custom serial config
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	m.ConnectPort(port)
	m.log.Debug().Str("device", cfg.Device).Int("baud", cfg.Baud).Msg("serial port open")

	// Give the device time to enumerate if it just powered on
	time.Sleep(100 * time.Millisecond)
	return nil
}

// ConnectPort runs the link over an already open port
func (m *MCU) ConnectPort(port io.ReadWriteCloser) {
	m.transport = protocol.NewHostTransport(port)
	m.connected = true
}

// SetTimeout sets how long a call waits for its response
func (m *MCU) SetTimeout(d time.Duration) {
	m.timeout = d
}

// Close closes the connection to the MCU
func (m *MCU) Close() error {
	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			return err
		}
	}
	m.connected = false
	return nil
}

// IsConnected returns whether the MCU is connected
func (m *MCU) IsConnected() bool {
	return m.connected
}

// RetrieveDictionary downloads the dictionary in identify chunks and
// indexes its commands and responses by name.
func (m *MCU) RetrieveDictionary() error {
	if !m.connected {
		return ErrNotConnected
	}

	var dictBuffer bytes.Buffer
	offset := uint32(0)
	maxIterations := 1000 // Safety limit

	for i := 0; i < maxIterations; i++ {
		chunk, err := m.sendIdentify(offset, identifyChunk)
		if err != nil {
			return fmt.Errorf("failed to retrieve dictionary chunk at offset %d: %w", offset, err)
		}
		if len(chunk) == 0 {
			break
		}
		dictBuffer.Write(chunk)
		offset += uint32(len(chunk))
		m.log.Trace().Uint32("offset", offset).Msg("dictionary chunk")

		if len(chunk) < identifyChunk {
			break
		}
	}

	data, err := inflate(dictBuffer.Bytes())
	if err != nil {
		return fmt.Errorf("failed to decompress dictionary: %w", err)
	}
	m.dictionaryData = data
	if err := m.parseDictionary(); err != nil {
		return fmt.Errorf("failed to parse dictionary: %w", err)
	}
	m.log.Debug().
		Int("compressed", dictBuffer.Len()).
		Int("bytes", len(data)).
		Str("version", m.dictionary.Version).
		Int("commands", len(m.commandIDs)).
		Msg("dictionary retrieved")
	return nil
}

// inflate unwraps a zlib dictionary. Plain JSON passes through unchanged.
func inflate(data []byte) ([]byte, error) {
	if len(data) == 0 || data[0] == '{' {
		return data, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// sendIdentify sends an identify command and waits for response
func (m *MCU) sendIdentify(offset uint32, count uint8) ([]byte, error) {
	m.transport.DrainResponses()
	err := m.transport.SendCommandWithTimeout(identifyID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	}, m.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to send identify command: %w", err)
	}

	payload, err := m.awaitID(identifyResponseID)
	if err != nil {
		return nil, fmt.Errorf("failed to receive identify response: %w", err)
	}

	respOffset, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response offset: %w", err)
	}
	if respOffset != offset {
		return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
	}

	data, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response data: %w", err)
	}
	return data, nil
}

// parseDictionary parses the dictionary JSON
func (m *MCU) parseDictionary() error {
	dict := &Dictionary{}
	if err := json.Unmarshal(m.dictionaryData, dict); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	m.dictionary = dict
	m.commandIDs = indexByName(dict.Commands)
	m.responseIDs = indexByName(dict.Responses)
	return nil
}

// indexByName keys a signature map ("name arg=%u ...") by the bare name
func indexByName(signatures map[string]int) map[string]uint16 {
	out := make(map[string]uint16, len(signatures))
	for sig, id := range signatures {
		name := sig
		if i := strings.IndexByte(sig, ' '); i >= 0 {
			name = sig[:i]
		}
		out[name] = uint16(id)
	}
	return out
}

// GetDictionary returns the parsed dictionary
func (m *MCU) GetDictionary() *Dictionary {
	return m.dictionary
}

// GetDictionaryRaw returns the raw dictionary data
func (m *MCU) GetDictionaryRaw() []byte {
	return m.dictionaryData
}

// Constant returns a numeric constant published in the dictionary
func (m *MCU) Constant(name string) (uint32, error) {
	if m.dictionary == nil {
		return 0, fmt.Errorf("dictionary not loaded")
	}
	raw, ok := m.dictionary.Config[name]
	if !ok {
		return 0, fmt.Errorf("unknown constant: %s", name)
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("constant %s: %w", name, err)
	}
	return uint32(v), nil
}

// PrintDictionary prints a summary of the dictionary
func (m *MCU) PrintDictionary(w io.Writer) {
	if m.dictionary == nil {
		fmt.Fprintln(w, "No dictionary loaded")
		return
	}

	fmt.Fprintln(w, "=== MCU Dictionary ===")
	fmt.Fprintf(w, "Version: %s\n", m.dictionary.Version)

	fmt.Fprintln(w, "\nConfig:")
	for _, k := range sortedKeys(m.dictionary.Config) {
		fmt.Fprintf(w, "  %s = %s\n", k, m.dictionary.Config[k])
	}

	fmt.Fprintf(w, "\nCommands (%d):\n", len(m.dictionary.Commands))
	printByID(w, m.dictionary.Commands)
	fmt.Fprintf(w, "\nResponses (%d):\n", len(m.dictionary.Responses))
	printByID(w, m.dictionary.Responses)
}

func sortedKeys(in map[string]string) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printByID(w io.Writer, entries map[string]int) {
	sigs := make([]string, 0, len(entries))
	for sig := range entries {
		sigs = append(sigs, sig)
	}
	sort.Slice(sigs, func(i, j int) bool { return entries[sigs[i]] < entries[sigs[j]] })
	for _, sig := range sigs {
		fmt.Fprintf(w, "  [%d] %s\n", entries[sig], sig)
	}
}

// SendCommand sends a command by name and waits for its ACK
func (m *MCU) SendCommand(name string, args func(output protocol.OutputBuffer)) error {
	if !m.connected {
		return ErrNotConnected
	}
	if m.dictionary == nil {
		return fmt.Errorf("dictionary not loaded")
	}
	cmdID, ok := m.commandIDs[name]
	if !ok {
		return fmt.Errorf("unknown command: %s", name)
	}
	return m.transport.SendCommandWithTimeout(cmdID, args, m.timeout)
}

// await waits for the named response, skipping any other message
func (m *MCU) await(name string) ([]byte, error) {
	id, ok := m.responseIDs[name]
	if !ok {
		return nil, fmt.Errorf("unknown response: %s", name)
	}
	return m.awaitID(id)
}

func (m *MCU) awaitID(id uint16) ([]byte, error) {
	deadline := time.Now().Add(m.timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("no response %d within %v", id, m.timeout)
		}
		msg, err := m.transport.ReceiveResponse(remaining)
		if err != nil {
			return nil, err
		}
		payload := msg.Payload
		got, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			continue
		}
		if uint16(got) == id {
			return payload, nil
		}
	}
}

// drain drops responses left over from an earlier timed out call
func (m *MCU) drain() {
	if m.transport != nil {
		m.transport.DrainResponses()
	}
}

// call sends a command and returns the payload of the named response
func (m *MCU) call(cmd string, args func(output protocol.OutputBuffer), resp string) ([]byte, error) {
	m.drain()
	if err := m.SendCommand(cmd, args); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	payload, err := m.await(resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	return payload, nil
}
