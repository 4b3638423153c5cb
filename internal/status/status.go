// Package status turns a printer reading into the state shown to users.
package status

import "github.com/schawnndev/receiptprinter/escpos"

// State is the overall printer status, ordered from worst to best
type State uint8

const (
	Offline State = iota
	NoPaper
	PaperLow
	Online
)

// Map reduces an online flag and a paper level to a State. An offline
// printer is Offline whatever paper level it reported.
func Map(online bool, level escpos.PaperLevel) State {
	if !online {
		return Offline
	}
	switch level {
	case escpos.PaperNone:
		return NoPaper
	case escpos.PaperLow:
		return PaperLow
	}
	return Online
}

// Labels used by the status sensor
var labels = [...]string{
	Offline:  "offline",
	NoPaper:  "no_paper",
	PaperLow: "paper_low",
	Online:   "online",
}

// Labels used by the paper sensor; an offline printer has no paper label
var paperLabels = [...]string{
	Offline:  "",
	NoPaper:  "out",
	PaperLow: "low",
	Online:   "ok",
}

// Label returns offline, no_paper, paper_low or online
func (s State) Label() string {
	if int(s) < len(labels) {
		return labels[s]
	}
	return labels[Offline]
}

// PaperLabel returns out, low or ok, or "" when the printer is offline.
func (s State) PaperLabel() string {
	if int(s) < len(paperLabels) {
		return paperLabels[s]
	}
	return ""
}

// Connected reports whether the printer answered as online
func (s State) Connected() bool {
	return s != Offline
}

func (s State) String() string {
	return s.Label()
}

// Options lists every label of the status sensor
func Options() []string {
	return append([]string(nil), labels[:]...)
}

// PaperOptions lists every label of the paper sensor
func PaperOptions() []string {
	return []string{paperLabels[Online], paperLabels[PaperLow], paperLabels[NoPaper]}
}
