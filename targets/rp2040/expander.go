//go:build rp2040

package main

import (
	"machine"
	"softpwm/expander"
)

// newExpanderDriver brings up I2C0 and the MCP23017 behind it
func newExpanderDriver() (*expander.Driver, error) {
	err := machine.I2C0.Configure(machine.I2CConfig{
		SDA:       expanderSDA,
		SCL:       expanderSCL,
		Frequency: ExpanderI2CHz,
	})
	if err != nil {
		return nil, err
	}
	return expander.New(machine.I2C0, ExpanderAddress)
}
