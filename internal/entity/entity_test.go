package entity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/schawnndev/receiptprinter/escpos"
	"github.com/schawnndev/receiptprinter/internal/config"
	"github.com/schawnndev/receiptprinter/internal/printer"
)

var testEntry = config.Entry{
	ID:    "abc123",
	Title: "Kitchen",
	Data:  config.EntryData{Host: "192.168.1.50", Name: "Kitchen"},
}

func reading(online bool, level escpos.PaperLevel) Reading {
	return Reading{Status: printer.Status{Online: online, PaperLevel: level}}
}

func TestOnlineSensor(t *testing.T) {
	s := NewOnlineSensor(testEntry)
	assert.Equal(t, "abc123_online", s.UniqueID())
	assert.Equal(t, StateUnavailable, s.State().Value)

	s.Update(reading(true, escpos.PaperNone))
	assert.True(t, s.IsOn())
	assert.True(t, s.Available())
	assert.Equal(t, StateOn, s.State().Value)

	s.Update(reading(false, escpos.PaperOK))
	assert.False(t, s.IsOn())
	assert.True(t, s.Available())
	assert.Equal(t, StateOff, s.State().Value)

	s.Update(reading(true, escpos.PaperOK))
	s.Update(Reading{Err: errors.New("timeout")})
	assert.False(t, s.IsOn())
	assert.False(t, s.Available())

	st := s.State()
	assert.Equal(t, DeviceClassConnectivity, st.DeviceClass)
	assert.Equal(t, DeviceInfo{
		Identifiers:  []string{"192.168.1.50"},
		Name:         "Kitchen",
		Manufacturer: "Epson",
		Model:        "Receipt Printer",
	}, st.Device)
}

func TestPaperSensor(t *testing.T) {
	tests := []struct {
		name      string
		reading   Reading
		value     string
		available bool
	}{
		{"ok", reading(true, escpos.PaperOK), "ok", true},
		{"low", reading(true, escpos.PaperLow), "low", true},
		{"out", reading(true, escpos.PaperNone), "out", true},
		{"offline", reading(false, escpos.PaperOK), StateUnavailable, false},
		{"error", Reading{Err: errors.New("boom")}, StateUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewPaperSensor(testEntry)
			s.Update(tt.reading)
			assert.Equal(t, tt.value, s.State().Value)
			assert.Equal(t, tt.available, s.Available())
		})
	}
}

func TestPaperSensorKeepsValueWhileOffline(t *testing.T) {
	s := NewPaperSensor(testEntry)
	s.Update(reading(true, escpos.PaperLow))
	s.Update(reading(false, escpos.PaperNone))

	assert.False(t, s.Available())
	assert.Equal(t, "low", s.Value())
	assert.Equal(t, []string{"ok", "low", "out"}, s.State().Options)
}

func TestStatusSensor(t *testing.T) {
	s := NewStatusSensor(testEntry)
	assert.Equal(t, "abc123_status", s.UniqueID())

	s.Update(reading(false, escpos.PaperOK))
	assert.Equal(t, "offline", s.State().Value)
	assert.True(t, s.Available())

	s.Update(reading(true, escpos.PaperLow))
	assert.Equal(t, "paper_low", s.State().Value)

	s.Update(Reading{Err: errors.New("boom")})
	assert.Equal(t, StateUnavailable, s.State().Value)
	assert.Equal(t, "paper_low", s.Value())
}

func TestNewSensors(t *testing.T) {
	var ids []string
	for _, s := range NewSensors(testEntry) {
		ids = append(ids, s.UniqueID())
	}
	assert.Equal(t, []string{"abc123_online", "abc123_paper_status", "abc123_status"}, ids)
}
