// Package protocol implements the soft PWM control protocol: Klipper-style
// message blocks (length, sequence, VLQ payload, CRC16, sync byte) carrying
// a small fixed command set.
package protocol

// Version is the protocol/firmware version string
const Version = "0.1.0"

// Protocol constants
const (
	MessageMax = 256 // Scratch output capacity

	// Message sequence masks
	MessageSeqMask = 0x0F
)

// Command IDs. Host and MCU share this table, so there is no dictionary
// exchange.
const (
	CmdConfigSoftPWM  uint16 = 1
	CmdSetSoftPWM     uint16 = 2
	CmdStartSoftPWM   uint16 = 3
	CmdStopSoftPWM    uint16 = 4
	CmdStopAllSoftPWM uint16 = 5
	CmdResetSoftPWM   uint16 = 6
)

// CommandInfo describes a command: its ID, name and argument format
type CommandInfo struct {
	ID     uint16
	Name   string
	Format string
}

// Commands lists every command the MCU accepts
var Commands = []CommandInfo{
	{CmdConfigSoftPWM, "config_soft_pwm", "oid=%c pin=%u"},
	{CmdSetSoftPWM, "set_soft_pwm", "oid=%c value=%c"},
	{CmdStartSoftPWM, "start_soft_pwm", "oid=%c"},
	{CmdStopSoftPWM, "stop_soft_pwm", "oid=%c"},
	{CmdStopAllSoftPWM, "stop_all_soft_pwm", ""},
	{CmdResetSoftPWM, "reset_soft_pwm", ""},
}

// LookupCommand finds a command by name
func LookupCommand(name string) (CommandInfo, bool) {
	for _, cmd := range Commands {
		if cmd.Name == name {
			return cmd, true
		}
	}
	return CommandInfo{}, false
}
