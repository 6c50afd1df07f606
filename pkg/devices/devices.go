package devices

import (
	"github.com/google/gousb"
)

// Samsung's USB vendor ID, shared by every Exynos download-mode
// bootloader we know about.
const SamsungVID gousb.ID = 0x04e8

// Description ties a product ID to the device family exposing it in
// download mode. Which PID shows up depends on the model and bootloader
// generation; the protocol spoken over it does not.
type Description struct {
	VID, PID gousb.ID
	Family   string
}

var Descriptions = []Description{
	{VID: SamsungVID, PID: 0x685d, Family: "Galaxy (legacy ODIN)"},
	{VID: SamsungVID, PID: 0x6860, Family: "Galaxy (MTP+ODIN)"},
	{VID: SamsungVID, PID: 0x6861, Family: "Galaxy (ODIN, debug)"},
	{VID: SamsungVID, PID: 0x6863, Family: "Galaxy (ODIN, tethering)"},
	{VID: SamsungVID, PID: 0x6864, Family: "Galaxy (ODIN, alt)"},
	{VID: SamsungVID, PID: 0x6866, Family: "Galaxy (ODIN, alt 2)"},
	{VID: SamsungVID, PID: 0x7000, Family: "Exynos USB booting"},
}
