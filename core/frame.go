package core

// Direction selects the data phase of a transfer. The values match the
// transfer flags of the controller API.
type Direction uint32

const (
	CommandOnly Direction = 0x0
	Read        Direction = 0x1
	Write       Direction = 0x2
)

func (d Direction) String() string {
	switch d {
	case CommandOnly:
		return "cmd"
	case Read:
		return "read"
	case Write:
		return "write"
	}
	return "direction(" + utoa(uint32(d)) + ")"
}

// NoExtension as the extension byte means the frame has no fourth address
// byte.
const NoExtension uint8 = 0x0

// Frame limits
const (
	MaxCommandBytes = 4
	MaxOpAddress    = 0x00FFFFFF
	FullDuplexMax   = 16
	HalfDuplexMax   = 32
)

// FrameRequest is the caller's view of a transfer before validation.
type FrameRequest struct {
	Op      uint32
	Ext     uint8
	CmdLen  int
	Payload []byte
	Dir     Direction
}

// Frame is a validated transfer. On the wire it is
// [Ext if HasExt][OpBytes bytes of Op, most significant first][Payload].
type Frame struct {
	Op      uint32
	OpBytes int
	Ext     uint8
	HasExt  bool
	Payload []byte
	Dir     Direction
}

// EncodeFrame validates req against limit, the largest payload the chosen
// backend accepts. A rejected request returns ErrInvalidParameter and has no
// side effects.
//
// The extension byte, when present, counts toward CmdLen: CmdLen 4 with an
// extension clocks the extension followed by the low three bytes of Op.
func EncodeFrame(req FrameRequest, limit int) (Frame, error) {
	if req.CmdLen < 0 || req.CmdLen > MaxCommandBytes {
		return Frame{}, ErrInvalidParameter
	}
	switch req.Dir {
	case CommandOnly, Read, Write:
	default:
		return Frame{}, ErrInvalidParameter
	}

	hasExt := req.Ext != NoExtension
	opBytes := req.CmdLen
	if hasExt {
		if opBytes == 0 {
			return Frame{}, ErrInvalidParameter
		}
		opBytes--
	}
	if !hasExt && req.Op > MaxOpAddress {
		return Frame{}, ErrInvalidParameter
	}
	if req.Op>>(8*uint(opBytes)) != 0 {
		return Frame{}, ErrInvalidParameter
	}

	payload := req.Payload
	if req.Dir == CommandOnly {
		payload = nil
	}
	if len(payload) > limit {
		return Frame{}, ErrInvalidParameter
	}
	if req.CmdLen == 0 && len(payload) == 0 {
		return Frame{}, ErrInvalidParameter
	}

	return Frame{
		Op:      req.Op,
		OpBytes: opBytes,
		Ext:     req.Ext,
		HasExt:  hasExt,
		Payload: payload,
		Dir:     req.Dir,
	}, nil
}

// HeaderLen is the number of command/address bytes clocked before the data
// phase.
func (f Frame) HeaderLen() int {
	if f.HasExt {
		return f.OpBytes + 1
	}
	return f.OpBytes
}

// Header returns the command/address bytes in bus order.
func (f Frame) Header() []byte {
	h := make([]byte, 0, f.HeaderLen())
	if f.HasExt {
		h = append(h, f.Ext)
	}
	for i := f.OpBytes - 1; i >= 0; i-- {
		h = append(h, byte(f.Op>>(8*uint(i))))
	}
	return h
}

// Bytes returns the header followed by the payload.
func (f Frame) Bytes() []byte {
	return append(f.Header(), f.Payload...)
}
