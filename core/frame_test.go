package core

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeFrame(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC}

	tests := []struct {
		name string
		req  FrameRequest
		want []byte
	}{
		{
			name: "read id",
			req:  FrameRequest{Op: 0x9F, CmdLen: 1, Payload: make([]byte, 3), Dir: Read},
			want: []byte{0x9F, 0, 0, 0},
		},
		{
			name: "write with three byte address",
			req:  FrameRequest{Op: 0x020100, CmdLen: 3, Payload: payload, Dir: Write},
			want: []byte{0x02, 0x01, 0x00, 0xAA, 0xBB, 0xCC},
		},
		{
			name: "command only drops payload",
			req:  FrameRequest{Op: 0x06, CmdLen: 1, Payload: payload, Dir: CommandOnly},
			want: []byte{0x06},
		},
		{
			name: "extension byte leads",
			req:  FrameRequest{Op: 0x123456, Ext: 0x03, CmdLen: 4, Payload: payload[:1], Dir: Write},
			want: []byte{0x03, 0x12, 0x34, 0x56, 0xAA},
		},
		{
			name: "extension alone",
			req:  FrameRequest{Ext: 0xB7, CmdLen: 1, Dir: CommandOnly},
			want: []byte{0xB7},
		},
		{
			name: "payload only",
			req:  FrameRequest{Payload: payload, Dir: Write},
			want: payload,
		},
		{
			name: "four opcode bytes",
			req:  FrameRequest{Op: 0x00ABCDEF, CmdLen: 4, Dir: CommandOnly},
			want: []byte{0x00, 0xAB, 0xCD, 0xEF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := EncodeFrame(tt.req, HalfDuplexMax)
			if err != nil {
				t.Fatalf("EncodeFrame: %v", err)
			}
			if got := f.Bytes(); !bytes.Equal(got, tt.want) {
				t.Errorf("Bytes() = % x, want % x", got, tt.want)
			}
			if f.HeaderLen() != tt.req.CmdLen {
				t.Errorf("HeaderLen() = %d, want %d", f.HeaderLen(), tt.req.CmdLen)
			}
		})
	}
}

func TestEncodeFrameRejects(t *testing.T) {
	tests := []struct {
		name  string
		req   FrameRequest
		limit int
	}{
		{"command length above four", FrameRequest{Op: 1, CmdLen: 5, Dir: CommandOnly}, HalfDuplexMax},
		{"negative command length", FrameRequest{CmdLen: -1, Payload: []byte{1}, Dir: Write}, HalfDuplexMax},
		{"unknown direction", FrameRequest{Op: 1, CmdLen: 1, Dir: Direction(3)}, HalfDuplexMax},
		{"op wider than 24 bits without extension", FrameRequest{Op: 0x01000000, CmdLen: 4, Dir: CommandOnly}, HalfDuplexMax},
		{"op wider than its bytes", FrameRequest{Op: 0x1234, CmdLen: 1, Dir: CommandOnly}, HalfDuplexMax},
		{"extension without command length", FrameRequest{Ext: 1, Payload: []byte{1}, Dir: Write}, HalfDuplexMax},
		{"empty frame", FrameRequest{Dir: Write}, HalfDuplexMax},
		{"empty command only", FrameRequest{Payload: []byte{1}, Dir: CommandOnly}, HalfDuplexMax},
		{"half duplex payload 33", FrameRequest{Payload: make([]byte, 33), Dir: Write}, HalfDuplexMax},
		{"full duplex payload 17", FrameRequest{Payload: make([]byte, 17), Dir: Read}, FullDuplexMax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeFrame(tt.req, tt.limit)
			if !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("EncodeFrame = %v, want ErrInvalidParameter", err)
			}
		})
	}
}

func TestEncodeFrameCeilings(t *testing.T) {
	if _, err := EncodeFrame(FrameRequest{Payload: make([]byte, HalfDuplexMax), Dir: Write}, HalfDuplexMax); err != nil {
		t.Errorf("32 byte half duplex payload: %v", err)
	}
	if _, err := EncodeFrame(FrameRequest{Payload: make([]byte, FullDuplexMax), Dir: Read}, FullDuplexMax); err != nil {
		t.Errorf("16 byte full duplex payload: %v", err)
	}
}

func TestDirectionString(t *testing.T) {
	if Read.String() != "read" || Write.String() != "write" || CommandOnly.String() != "cmd" {
		t.Errorf("unexpected names: %s %s %s", Read, Write, CommandOnly)
	}
	if got := Direction(7).String(); got != "direction(7)" {
		t.Errorf("Direction(7) = %q", got)
	}
}
