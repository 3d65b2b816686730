package email

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessageHeaders(t *testing.T) {
	msg := buildMessage("salon@example.com", "ana@example.com", "Cita confirmada", "Hola Ana")
	for _, want := range []string{
		"From: salon@example.com\r\n",
		"To: ana@example.com\r\n",
		"Subject: Cita confirmada\r\n",
		"Content-Type: text/plain; charset=utf-8\r\n\r\nHola Ana\r\n",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestSMTPSenderDefaults(t *testing.T) {
	s := NewSMTPSender(" mailpit ", "1025", "")
	assert.Equal(t, "mailpit:1025", s.addr)
	assert.Equal(t, "no-reply@salon.local", s.from)
	assert.Equal(t, "smtp", s.ProviderID())
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, s.Send("ana@example.com", "Cita confirmada", "Hola"))
	assert.Contains(t, buf.String(), `"subject":"Cita confirmada"`)
	assert.Equal(t, "log", s.ProviderID())
}
