package escpos

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryStatus(t *testing.T) {
	mock := NewMockPrinter()
	p := New(mock)

	mock.SetStatus([]byte{0x16})
	status, err := p.QueryStatus(StatusPrinter)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x16}, status)
	assert.Equal(t, []byte{dle, eot, StatusPrinter}, mock.Bytes())

	mock.SetStatus(nil)
	status, err = p.QueryStatus(StatusPrinter)
	assert.NoError(t, err)
	assert.Empty(t, status)
}

func TestQueryStatusFlushesPending(t *testing.T) {
	mock := NewMockPrinter()
	p := New(mock)

	_, err := p.Write("pending")
	require.NoError(t, err)

	mock.SetStatus([]byte{0x12})
	_, err = p.QueryStatus(StatusPaper)
	require.NoError(t, err)

	assert.Equal(t, append([]byte("pending"), dle, eot, StatusPaper), mock.Bytes())
}

func TestIsOnline(t *testing.T) {
	mock := NewMockPrinter()
	p := New(mock)

	mock.SetStatus([]byte{0x16})
	online, err := p.IsOnline()
	assert.NoError(t, err)
	assert.True(t, online)

	// Bit 3 (offline) is set
	mock.SetStatus([]byte{0x1E})
	online, err = p.IsOnline()
	assert.NoError(t, err)
	assert.False(t, online)

	mock.SetStatus(nil)
	online, err = p.IsOnline()
	assert.False(t, online)
	assert.ErrorIs(t, err, ErrNoStatus)
}

func TestPaperStatus(t *testing.T) {
	tests := []struct {
		name   string
		status []byte
		want   PaperLevel
	}{
		{name: "adequate", status: []byte{0x12}, want: PaperOK},
		{name: "near end", status: []byte{0x1E}, want: PaperLow},
		{name: "end", status: []byte{0x72}, want: PaperNone},
		{name: "end and near end", status: []byte{0x7E}, want: PaperNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockPrinter()
			p := New(mock)
			mock.SetStatus(tt.status)

			level, err := p.PaperStatus()
			assert.NoError(t, err)
			assert.Equal(t, tt.want, level)
		})
	}
}

func TestPaperStatusProtocolErrors(t *testing.T) {
	mock := NewMockPrinter()
	p := New(mock)

	_, err := p.PaperStatus()
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "paper status", perr.Op)
	assert.ErrorIs(t, err, ErrNoStatus)

	mock.SetStatus([]byte{0x00})
	_, err = p.PaperStatus()
	assert.ErrorIs(t, err, ErrMalformedStatus)
	assert.Contains(t, err.Error(), "0x00")
}

func TestPaperLevelString(t *testing.T) {
	assert.Equal(t, "no paper", PaperNone.String())
	assert.Equal(t, "paper low", PaperLow.String())
	assert.Equal(t, "paper ok", PaperOK.String())
	assert.Equal(t, "PaperLevel(7)", PaperLevel(7).String())
}
