package setup

import (
	"context"
	"fmt"

	"github.com/schawnndev/receiptprinter/internal/config"
)

// OptionsStore is the part of config.Store the options form needs
type OptionsStore interface {
	Get(id string) (config.Entry, bool)
	Update(e config.Entry) error
}

// Reloader applies changed options to a running entry
type Reloader func(ctx context.Context, entryID string) error

// OptionsInput holds the editable settings. Zero fields keep their current value.
type OptionsInput struct {
	ColumnsFontA  int `json:"columns_font_a"`
	ColumnsFontB  int `json:"columns_font_b"`
	ImageMaxWidth int `json:"image_max_width"`
}

// OptionsResult is the form shown for, or the outcome of, an options change
type OptionsResult struct {
	Type   ResultType        `json:"type"`
	StepID string            `json:"step_id,omitempty"`
	Input  OptionsInput      `json:"input"`
	Errors map[string]string `json:"errors,omitempty"`
}

type OptionsFlow struct {
	store  OptionsStore
	reload Reloader
}

func NewOptionsFlow(store OptionsStore, reload Reloader) *OptionsFlow {
	return &OptionsFlow{store: store, reload: reload}
}

// Start returns the form prefilled with the entry's current settings
func (f *OptionsFlow) Start(entryID string) (OptionsResult, error) {
	e, ok := f.store.Get(entryID)
	if !ok {
		return OptionsResult{}, config.ErrEntryNotFound
	}
	return OptionsResult{Type: ResultForm, StepID: "init", Input: current(e)}, nil
}

// Submit stores the options and reloads the entry
func (f *OptionsFlow) Submit(ctx context.Context, entryID string, in OptionsInput) (OptionsResult, error) {
	e, ok := f.store.Get(entryID)
	if !ok {
		return OptionsResult{}, config.ErrEntryNotFound
	}

	cur := current(e)
	if in.ColumnsFontA == 0 {
		in.ColumnsFontA = cur.ColumnsFontA
	}
	if in.ColumnsFontB == 0 {
		in.ColumnsFontB = cur.ColumnsFontB
	}
	if in.ImageMaxWidth == 0 {
		in.ImageMaxWidth = cur.ImageMaxWidth
	}

	errs := map[string]string{}
	validateSettings(errs, in.ColumnsFontA, in.ColumnsFontB, in.ImageMaxWidth)
	if len(errs) > 0 {
		return OptionsResult{Type: ResultForm, StepID: "init", Input: in, Errors: errs}, nil
	}

	e.Options = config.EntryOptions{
		ColumnsFontA:  in.ColumnsFontA,
		ColumnsFontB:  in.ColumnsFontB,
		ImageMaxWidth: in.ImageMaxWidth,
	}
	if err := f.store.Update(e); err != nil {
		return OptionsResult{}, fmt.Errorf("saving options: %w", err)
	}
	if f.reload != nil {
		if err := f.reload(ctx, entryID); err != nil {
			return OptionsResult{}, fmt.Errorf("reloading entry: %w", err)
		}
	}
	return OptionsResult{Type: ResultCreateEntry, Input: in}, nil
}

func current(e config.Entry) OptionsInput {
	s := e.Settings()
	def := DefaultInput()
	in := OptionsInput{
		ColumnsFontA:  s.ColumnsFontA,
		ColumnsFontB:  s.ColumnsFontB,
		ImageMaxWidth: s.ImageMaxWidth,
	}
	if in.ColumnsFontA <= 0 {
		in.ColumnsFontA = def.ColumnsFontA
	}
	if in.ColumnsFontB <= 0 {
		in.ColumnsFontB = def.ColumnsFontB
	}
	if in.ImageMaxWidth <= 0 {
		in.ImageMaxWidth = def.ImageMaxWidth
	}
	return in
}
