package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"softpwm/host/mcu"
	"softpwm/host/profile"
	"softpwm/protocol"
)

var (
	device      = flag.String("device", "", "Serial device path (overrides the profile)")
	baud        = flag.Int("baud", 0, "Baud rate (ignored for USB CDC)")
	profilePath = flag.String("profile", "", "YAML channel profile to apply on connect")
	stopOnExit  = flag.Bool("stop-on-exit", true, "Stop all channels before exiting")
)

// controller is the subset of *mcu.MCU the command loop uses
type controller interface {
	ConfigChannel(oid uint8, pin uint32) error
	SetDuty(oid uint8, value uint8) error
	Start(oid uint8) error
	Stop(oid uint8) error
	StopAll() error
	Reset() error
	ApplyProfile(p *profile.Profile) error
}

var errQuit = errors.New("quit")

func main() {
	flag.Parse()

	fmt.Println("softpwm host " + protocol.Version)
	fmt.Println()

	p := profile.Default("/dev/ttyACM0")
	if *profilePath != "" {
		loaded, err := profile.Load(*profilePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		p = loaded
	}

	cfg := p.Serial
	if *device != "" {
		cfg.Device = *device
	}
	if cfg.Device == "" {
		cfg.Device = "/dev/ttyACM0"
	}
	if *baud != 0 {
		cfg.Baud = *baud
	}

	fmt.Printf("Connecting to MCU on %s...\n", cfg.Device)
	m, err := mcu.Connect(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	if *profilePath != "" {
		if err := m.ApplyProfile(p); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to apply profile: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Applied %d channels from %s\n", len(p.Channels), *profilePath)
	}

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		err := execLine(m, p, scanner.Text())
		if errors.Is(err, errQuit) {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	if *stopOnExit {
		if err := m.StopAll(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to stop channels: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

// execLine runs one interactive command
func execLine(c controller, p *profile.Profile, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "quit", "exit", "q":
		return errQuit

	case "help", "?":
		printHelp()
		return nil

	case "commands":
		for _, cmd := range protocol.Commands {
			fmt.Printf("  [%d] %s %s\n", cmd.ID, cmd.Name, cmd.Format)
		}
		return nil

	case "channels":
		for i, ch := range p.Channels {
			fmt.Printf("  oid=%d %-12s pin=%-2d duty=%d enabled=%v\n", i, ch.Name, ch.Pin, ch.Duty, ch.IsEnabled())
		}
		return nil

	case "apply":
		return c.ApplyProfile(p)

	case "stopall":
		return c.StopAll()

	case "reset":
		return c.Reset()

	case "config":
		if len(parts) != 3 {
			return errors.New("usage: config <oid> <pin>")
		}
		oid, err := parseUint(parts[1], 0xFF)
		if err != nil {
			return err
		}
		pin, err := parseUint(parts[2], 0xFFFFFFFF)
		if err != nil {
			return err
		}
		return c.ConfigChannel(uint8(oid), uint32(pin))

	case "set":
		if len(parts) != 3 {
			return errors.New("usage: set <oid|name> <0-255>")
		}
		oid, err := resolveOID(p, parts[1])
		if err != nil {
			return err
		}
		value, err := parseUint(parts[2], 0xFF)
		if err != nil {
			return err
		}
		return c.SetDuty(oid, uint8(value))

	case "start", "stop":
		if len(parts) != 2 {
			return fmt.Errorf("usage: %s <oid|name>", parts[0])
		}
		oid, err := resolveOID(p, parts[1])
		if err != nil {
			return err
		}
		if parts[0] == "start" {
			return c.Start(oid)
		}
		return c.Stop(oid)

	default:
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", parts[0])
	}
}

// resolveOID accepts a numeric oid or a profile channel name
func resolveOID(p *profile.Profile, arg string) (uint8, error) {
	if _, idx, ok := p.Channel(arg); ok {
		return uint8(idx), nil
	}
	oid, err := parseUint(arg, 0xFF)
	if err != nil {
		return 0, fmt.Errorf("no channel named %q", arg)
	}
	return uint8(oid), nil
}

func parseUint(s string, max uint64) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if v > max {
		return 0, fmt.Errorf("%d out of range (max %d)", v, max)
	}
	return v, nil
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  config <oid> <pin>       - Create a channel")
	fmt.Println("  set <oid|name> <0-255>   - Set channel duty")
	fmt.Println("  start <oid|name>         - Resume a channel")
	fmt.Println("  stop <oid|name>          - Stop a channel at its last level")
	fmt.Println("  stopall                  - Stop every channel and drive pins low")
	fmt.Println("  reset                    - Stop everything and free all oids")
	fmt.Println("  apply                    - Configure all profile channels")
	fmt.Println("  channels                 - List profile channels")
	fmt.Println("  commands                 - List protocol commands")
	fmt.Println("  quit/exit/q              - Exit the program")
	fmt.Println()
}

var _ controller = (*mcu.MCU)(nil)
