package wire

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	t.Run("VerbOnly", func(t *testing.T) {
		cmd := ParseCommand("pasv\r\n")
		assert.Equal(t, "PASV", cmd.Verb)
		assert.Empty(t, cmd.Arg)
		assert.Equal(t, "PASV", cmd.String())
	})

	t.Run("ArgumentWithSpaces", func(t *testing.T) {
		cmd := ParseCommand("STOR my report.pdf")
		assert.Equal(t, "STOR", cmd.Verb)
		assert.Equal(t, "my report.pdf", cmd.Arg)
		assert.Equal(t, "STOR my report.pdf", cmd.String())
	})

	t.Run("Empty", func(t *testing.T) {
		cmd := ParseCommand("")
		assert.Empty(t, cmd.Verb)
	})
}

func TestReadReply_SingleLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("220 Bem-vindo\r\n"))

	reply, err := ReadReply(r)
	require.NoError(t, err)
	assert.Equal(t, 220, reply.Code)
	assert.Equal(t, "Bem-vindo", reply.Text())
	assert.False(t, reply.IsError())
}

func TestReadReply_MultiLine(t *testing.T) {
	input := "211-Status da encomenda:\r\n  0007: report.pdf (ENVIADA)\r\n211 Fim do status\r\n226 next\r\n"
	r := bufio.NewReader(strings.NewReader(input))

	reply, err := ReadReply(r)
	require.NoError(t, err)
	assert.Equal(t, 211, reply.Code)
	require.Len(t, reply.Lines, 3)
	assert.Equal(t, "  0007: report.pdf (ENVIADA)", reply.Lines[1])
	assert.Equal(t, "Fim do status", reply.Text())

	next, err := ReadReply(r)
	require.NoError(t, err)
	assert.Equal(t, 226, next.Code)
}

func TestReadReply_Errors(t *testing.T) {
	t.Run("Malformed", func(t *testing.T) {
		_, err := ReadReply(bufio.NewReader(strings.NewReader("hello\n")))
		assert.ErrorIs(t, err, ErrMalformedReply)
	})

	t.Run("TruncatedMultiLine", func(t *testing.T) {
		_, err := ReadReply(bufio.NewReader(strings.NewReader("211-start\n")))
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("ClosedStream", func(t *testing.T) {
		_, err := ReadReply(bufio.NewReader(strings.NewReader("")))
		assert.True(t, errors.Is(err, io.EOF))
	})
}

func TestReply_IsError(t *testing.T) {
	assert.True(t, NewReply(CodeNotFound, "ID nao encontrado.").IsError())
	assert.True(t, NewReply(CodeCantOpenData, "x").IsError())
	assert.False(t, NewReply(CodeTransferDone, "ok").IsError())
	assert.False(t, NewReply(CodeOpeningData, "ok").IsError())
}

func TestWriteReply(t *testing.T) {
	var buf bytes.Buffer
	reply := Reply{Code: 211, Lines: []string{"211-a", "  b", "211 c"}}

	require.NoError(t, WriteReply(&buf, reply))
	assert.Equal(t, "211-a\r\n  b\r\n211 c\r\n", buf.String())
}

func TestPassive_RoundTrip(t *testing.T) {
	encoded, err := EncodePassive(net.ParseIP("127.0.0.1"), 5000)
	require.NoError(t, err)
	assert.Equal(t, "127,0,0,1,19,136", encoded)

	line, err := PassiveLine(net.ParseIP("127.0.0.1"), 5000)
	require.NoError(t, err)
	assert.Equal(t, "227 Entering Passive Mode (127,0,0,1,19,136).", line)

	addr, err := ParsePassive(line)
	require.NoError(t, err)
	assert.True(t, addr.IP.Equal(net.ParseIP("127.0.0.1")))
	assert.Equal(t, 5000, addr.Port)
}

func TestEncodePassive_Invalid(t *testing.T) {
	_, err := EncodePassive(net.ParseIP("::1"), 5000)
	assert.ErrorIs(t, err, ErrMalformedPassive)

	_, err = EncodePassive(net.ParseIP("10.0.0.1"), 0)
	assert.ErrorIs(t, err, ErrMalformedPassive)
}

func TestParsePassive_Malformed(t *testing.T) {
	cases := []string{
		"227 Entering Passive Mode.",
		"227 Entering Passive Mode (127,0,0,1,19).",
		"227 Entering Passive Mode (300,0,0,1,19,136).",
		"227 Entering Passive Mode (127,0,0,1,0,0).",
	}
	for _, line := range cases {
		_, err := ParsePassive(line)
		assert.ErrorIs(t, err, ErrMalformedPassive, line)
	}
}
