package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"spimhal/core"
)

// shell executes one command line against a controller
type shell struct {
	ctl controller
	out io.Writer
}

var errQuit = errors.New("quit")

// settingNames are the symbolic forms accepted by init
var settingNames = map[string]uint32{
	"msb":   core.MSBFirst,
	"lsb":   core.LSBFirst,
	"cpol0": core.CPOL0,
	"cpol1": core.CPOL1,
	"cpha0": core.CPHA0,
	"cpha1": core.CPHA1,
	"int":   core.IntEnable,
	"noint": core.IntDisable,
	"half":  core.HalfDuplex,
	"full":  core.FullDuplex,
	"ss0":   core.SlaveSel0,
	"ss1":   core.SlaveSel1,
}

// parseSettings accepts a number or names joined with '|', e.g. "lsb|full|ss1"
func parseSettings(s string) (uint32, error) {
	if v, err := strconv.ParseUint(s, 0, 32); err == nil {
		return uint32(v), nil
	}
	var mask uint32
	for _, name := range strings.Split(s, "|") {
		v, ok := settingNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("unknown setting %q", name)
		}
		mask |= v
	}
	return mask, nil
}

func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return v, nil
}

// parseHex decodes "deadbeef" or "de:ad:be:ef"
func parseHex(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, ":", "")
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("bad hex data %q: %w", s, err)
	}
	return b, nil
}

// frameArgs parses "<op> <cmd_len> <count|hex> [ext]"
type frameArgs struct {
	op     uint32
	cmdLen uint8
	ext    uint8
	buf    []byte
}

func parseFrame(args []string, flag core.Direction) (frameArgs, error) {
	var a frameArgs
	fixed := 3
	if flag == core.CommandOnly {
		fixed = 2
	}
	if len(args) < fixed || len(args) > fixed+1 {
		return a, fmt.Errorf("want %d or %d arguments", fixed, fixed+1)
	}
	op, err := parseUint(args[0], 32)
	if err != nil {
		return a, err
	}
	n, err := parseUint(args[1], 8)
	if err != nil {
		return a, err
	}
	a.op, a.cmdLen = uint32(op), uint8(n)

	switch flag {
	case core.Read:
		count, err := parseUint(args[2], 16)
		if err != nil {
			return a, err
		}
		a.buf = make([]byte, count)
	case core.Write:
		if a.buf, err = parseHex(args[2]); err != nil {
			return a, err
		}
	}
	if len(args) == fixed+1 {
		ext, err := parseUint(args[fixed], 8)
		if err != nil {
			return a, err
		}
		a.ext = uint8(ext)
	}
	return a, nil
}

// Run splits line shell-style and executes it. It returns errQuit for quit.
func (sh *shell) Run(line string) error {
	words, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(words) == 0 {
		return nil
	}
	cmd, args := words[0], words[1:]

	switch cmd {
	case "quit", "exit", "q":
		return errQuit
	case "help", "?":
		sh.help()
		return nil
	case "init":
		if len(args) != 2 {
			return fmt.Errorf("usage: init <settings> <divisor>")
		}
		settings, err := parseSettings(args[0])
		if err != nil {
			return err
		}
		div, err := parseUint(args[1], 32)
		if err != nil {
			return err
		}
		return sh.status(sh.ctl.Init(settings, uint32(div)))
	case "read", "write", "cmd", "dma-read", "dma-write":
		return sh.transfer(cmd, args)
	case "reset":
		return sh.status(sh.ctl.Reset())
	case "deinit":
		return sh.status(sh.ctl.Deinit())
	case "dump":
		regs, err := sh.ctl.Dump()
		if err != nil {
			return err
		}
		for _, rv := range regs {
			fmt.Fprintf(sh.out, "%-8s @0x%02x = 0x%08x\n", rv.Name, uint8(rv.Offset), rv.Value)
		}
		return nil
	case "query":
		st, err := sh.ctl.Query()
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "busy=%v initialized=%v frequency=%d events=%d dma=%v\n",
			st.Busy, st.Initialized, st.Frequency, st.Events, core.StatusOf(st.DMAErr))
		return nil
	case "trace":
		events, err := sh.ctl.Trace()
		if err != nil {
			return err
		}
		for _, evt := range events {
			fmt.Fprintln(sh.out, evt.String())
		}
		return nil
	case "adc-init":
		return sh.status(sh.ctl.ADCInit())
	case "adc-deinit":
		return sh.status(sh.ctl.ADCDeinit())
	case "adc":
		if len(args) != 1 {
			return fmt.Errorf("usage: adc <channel>")
		}
		ch, err := parseUint(args[0], 8)
		if err != nil {
			return err
		}
		v, err := sh.ctl.ADCRead(core.ADCChannel(ch))
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "channel %d = %d (%.1f%%)\n", ch, v, 100*float64(v)/core.ADCMax)
		return nil
	}
	return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmd)
}

func (sh *shell) transfer(cmd string, args []string) error {
	var flag core.Direction
	switch cmd {
	case "read", "dma-read":
		flag = core.Read
	case "write", "dma-write":
		flag = core.Write
	default:
		flag = core.CommandOnly
	}
	a, err := parseFrame(args, flag)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}

	run := sh.ctl.Transfer
	if strings.HasPrefix(cmd, "dma-") {
		run = sh.ctl.DMA
	}
	data, err := run(a.op, a.ext, a.cmdLen, flag, a.buf)
	if err != nil {
		return err
	}
	if flag == core.Read {
		fmt.Fprintln(sh.out, hex.EncodeToString(data))
		return nil
	}
	return sh.status(nil)
}

func (sh *shell) status(err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(sh.out, "ok")
	return nil
}

func (sh *shell) help() {
	fmt.Fprintln(sh.out, `Available commands:
  init <settings> <divisor>          settings: number or e.g. "lsb|cpol1|cpha1|int|full|ss1"
  read <op> <cmd_len> <count> [ext]  polling read
  write <op> <cmd_len> <hex> [ext]   polling write
  cmd <op> <cmd_len> [ext]           command phase only
  dma-read / dma-write               as read / write, through DMA
  reset | deinit | dump | query | trace
  adc-init | adc-deinit | adc <channel>
  quit`)
}
