// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

// chunkConn delivers scripted chunks, one per Read, then idles like a serial
// port whose read timeout elapsed
type chunkConn struct {
	chunks  [][]byte
	written bytes.Buffer
	err     error
	resets  int
	closed  bool
}

func (c *chunkConn) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		if c.err != nil {
			return 0, c.err
		}
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func (c *chunkConn) Write(p []byte) (int, error) {
	return c.written.Write(p)
}

func (c *chunkConn) Close() error {
	c.closed = true
	return nil
}

func (c *chunkConn) ResetInputBuffer() error {
	c.resets++
	c.chunks = nil
	return nil
}

func TestStreamPort_ReadUntil(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		delim  byte
		want   string
		rest   string
	}{
		{"single chunk", []string{"@@@101ACK5.00;"}, ';', "@@@101ACK5.00;", ""},
		{"split chunks", []string{"@@@1", "01AC", "K5.00;"}, ';', "@@@101ACK5.00;", ""},
		{"keeps surplus", []string{"@@@101ACK;4A"}, ';', "@@@101ACK;", "4A"},
		{"delimiter first", []string{">x"}, '>', ">", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &chunkConn{}
			for _, c := range tt.chunks {
				conn.chunks = append(conn.chunks, []byte(c))
			}
			port := NewStreamPort(conn, 50*time.Millisecond)

			got, err := port.ReadUntil(tt.delim)
			if err != nil {
				t.Fatalf("ReadUntil() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("ReadUntil() = %q, want %q", got, tt.want)
			}
			if string(port.pending) != tt.rest {
				t.Errorf("pending = %q, want %q", port.pending, tt.rest)
			}
		})
	}
}

func TestStreamPort_ReadUntilTimeout(t *testing.T) {
	conn := &chunkConn{chunks: [][]byte{[]byte("@@@101AC")}}
	port := NewStreamPort(conn, 20*time.Millisecond)

	start := time.Now()
	got, err := port.ReadUntil(';')
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if string(got) != "@@@101AC" {
		t.Errorf("partial data = %q", got)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("returned before the timeout elapsed")
	}
}

func TestStreamPort_ReadN(t *testing.T) {
	conn := &chunkConn{chunks: [][]byte{{0x05}, {0x03, 0x02, 0x03}, {0x20, 0xAA}}}
	port := NewStreamPort(conn, 50*time.Millisecond)

	head, err := port.ReadN(2)
	if err != nil {
		t.Fatalf("ReadN(2) error = %v", err)
	}
	if !bytes.Equal(head, []byte{0x05, 0x03}) {
		t.Errorf("ReadN(2) = % X", head)
	}

	rest, err := port.ReadN(5)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if !bytes.Equal(rest, []byte{0x02, 0x03, 0x20, 0xAA}) {
		t.Errorf("partial ReadN = % X", rest)
	}
}

func TestStreamPort_EOF(t *testing.T) {
	conn := &chunkConn{err: io.EOF}
	port := NewStreamPort(conn, time.Second)

	if _, err := port.ReadUntil('>'); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestStreamPort_Flush(t *testing.T) {
	conn := &chunkConn{chunks: [][]byte{[]byte("junk;more")}}
	port := NewStreamPort(conn, 20*time.Millisecond)

	if _, err := port.ReadUntil(';'); err != nil {
		t.Fatal(err)
	}
	if err := port.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(port.pending) != 0 {
		t.Errorf("pending not cleared: %q", port.pending)
	}
	if conn.resets != 1 {
		t.Errorf("ResetInputBuffer called %d times, want 1", conn.resets)
	}
}

func TestStreamPort_DefaultTimeout(t *testing.T) {
	port := NewStreamPort(&chunkConn{}, 0)
	if port.Timeout() != DefaultTimeout {
		t.Errorf("Timeout() = %v, want %v", port.Timeout(), DefaultTimeout)
	}
}
