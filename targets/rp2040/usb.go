//go:build rp2040

package main

import "machine"

// InitUSB configures machine.Serial, which is the USB CDC-ACM port on RP2040
func InitUSB() error {
	return machine.Serial.Configure(machine.UARTConfig{})
}

// USBAvailable returns the number of bytes waiting to be read
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBRead reads one byte
func USBRead() (byte, error) {
	return machine.Serial.ReadByte()
}

// USBWriteBytes writes data, possibly partially
func USBWriteBytes(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
