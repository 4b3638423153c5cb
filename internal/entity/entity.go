// Package entity exposes printer readings as sensors.
package entity

import (
	"github.com/schawnndev/receiptprinter/internal/config"
	"github.com/schawnndev/receiptprinter/internal/printer"
	"github.com/schawnndev/receiptprinter/internal/status"
)

// Sensor keys
const (
	KeyOnline      = "online"
	KeyPaperStatus = "paper_status"
	KeyStatus      = "status"
)

const (
	Manufacturer = "Epson"
	Model        = "Receipt Printer"

	StateOn          = "on"
	StateOff         = "off"
	StateUnavailable = "unavailable"

	DeviceClassConnectivity = "connectivity"
	DeviceClassEnum         = "enum"
)

// DeviceInfo groups the sensors of one printer
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// NewDeviceInfo identifies the device by the entry's host
func NewDeviceInfo(e config.Entry) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{e.Data.Host},
		Name:         e.Title,
		Manufacturer: Manufacturer,
		Model:        Model,
	}
}

// Reading is the outcome of one status query
type Reading struct {
	Status printer.Status
	Err    error
}

// State is what a sensor currently shows
type State struct {
	UniqueID    string     `json:"unique_id"`
	EntryID     string     `json:"entry_id"`
	Key         string     `json:"key"`
	Name        string     `json:"name"`
	Value       string     `json:"state"`
	Available   bool       `json:"available"`
	DeviceClass string     `json:"device_class,omitempty"`
	Icon        string     `json:"icon,omitempty"`
	Options     []string   `json:"options,omitempty"`
	Device      DeviceInfo `json:"device"`
}

func (s State) equal(o State) bool {
	return s.UniqueID == o.UniqueID && s.Value == o.Value && s.Available == o.Available
}

// Sensor is one entity of a printer, updated from every status reading
type Sensor interface {
	UniqueID() string
	Update(r Reading)
	State() State
}

type base struct {
	entryID     string
	key         string
	name        string
	deviceClass string
	icon        string
	options     []string
	device      DeviceInfo
	available   bool
}

func newBase(e config.Entry, key, name string) base {
	return base{
		entryID: e.ID,
		key:     key,
		name:    name,
		device:  NewDeviceInfo(e),
	}
}

func (b *base) UniqueID() string {
	return b.entryID + "_" + b.key
}

func (b *base) Available() bool {
	return b.available
}

func (b *base) state(value string) State {
	if !b.available {
		value = StateUnavailable
	}
	return State{
		UniqueID:    b.UniqueID(),
		EntryID:     b.entryID,
		Key:         b.key,
		Name:        b.name,
		Value:       value,
		Available:   b.available,
		DeviceClass: b.deviceClass,
		Icon:        b.icon,
		Options:     b.options,
		Device:      b.device,
	}
}

// OnlineSensor is on while the printer answers as online
type OnlineSensor struct {
	base
	on bool
}

func NewOnlineSensor(e config.Entry) *OnlineSensor {
	s := &OnlineSensor{base: newBase(e, KeyOnline, "Online")}
	s.deviceClass = DeviceClassConnectivity
	return s
}

func (s *OnlineSensor) Update(r Reading) {
	if r.Err != nil {
		s.on = false
		s.available = false
		return
	}
	s.on = status.Map(r.Status.Online, r.Status.PaperLevel).Connected()
	s.available = true
}

func (s *OnlineSensor) IsOn() bool {
	return s.on
}

func (s *OnlineSensor) State() State {
	if s.on {
		return s.state(StateOn)
	}
	return s.state(StateOff)
}

// PaperSensor reports ok, low or out. It is unavailable while the printer is offline.
type PaperSensor struct {
	base
	value string
}

func NewPaperSensor(e config.Entry) *PaperSensor {
	s := &PaperSensor{base: newBase(e, KeyPaperStatus, "Paper Status")}
	s.deviceClass = DeviceClassEnum
	s.icon = "mdi:receipt"
	s.options = status.PaperOptions()
	return s
}

func (s *PaperSensor) Update(r Reading) {
	if r.Err != nil {
		s.available = false
		return
	}
	label := status.Map(r.Status.Online, r.Status.PaperLevel).PaperLabel()
	if label == "" {
		s.available = false
		return
	}
	s.value = label
	s.available = true
}

func (s *PaperSensor) Value() string {
	return s.value
}

func (s *PaperSensor) State() State {
	return s.state(s.value)
}

// StatusSensor folds the reading into a single offline, no_paper, paper_low or online value
type StatusSensor struct {
	base
	value string
}

func NewStatusSensor(e config.Entry) *StatusSensor {
	s := &StatusSensor{base: newBase(e, KeyStatus, "Status")}
	s.deviceClass = DeviceClassEnum
	s.icon = "mdi:printer-pos"
	s.options = status.Options()
	return s
}

func (s *StatusSensor) Update(r Reading) {
	if r.Err != nil {
		s.available = false
		return
	}
	s.value = status.Map(r.Status.Online, r.Status.PaperLevel).Label()
	s.available = true
}

func (s *StatusSensor) Value() string {
	return s.value
}

func (s *StatusSensor) State() State {
	return s.state(s.value)
}

// NewSensors returns every sensor of an entry
func NewSensors(e config.Entry) []Sensor {
	return []Sensor{
		NewOnlineSensor(e),
		NewPaperSensor(e),
		NewStatusSensor(e),
	}
}
