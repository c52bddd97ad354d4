// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"strings"
	"testing"
	"time"

	"go.bug.st/serial"
)

type fakeSerial struct {
	chunkConn
	readTimeout time.Duration
}

func (f *fakeSerial) SetReadTimeout(t time.Duration) error {
	f.readTimeout = t
	return nil
}

func withOpenPort(t *testing.T, fn func(name string, mode *serial.Mode) (serialHandle, error)) {
	t.Helper()
	orig := openPort
	openPort = fn
	t.Cleanup(func() { openPort = orig })
}

func TestOpenSerial(t *testing.T) {
	fake := &fakeSerial{}
	var gotName string
	var gotMode *serial.Mode
	withOpenPort(t, func(name string, mode *serial.Mode) (serialHandle, error) {
		gotName, gotMode = name, mode
		return fake, nil
	})

	port, err := OpenSerial("/dev/ttyUSB0", 0, 3*time.Second)
	if err != nil {
		t.Fatalf("OpenSerial() error = %v", err)
	}
	if gotName != "/dev/ttyUSB0" {
		t.Errorf("opened %q", gotName)
	}
	if gotMode.BaudRate != DefaultBaudRate || gotMode.DataBits != 8 ||
		gotMode.Parity != serial.NoParity || gotMode.StopBits != serial.OneStopBit {
		t.Errorf("unexpected mode %+v", gotMode)
	}
	if fake.readTimeout != readSlice {
		t.Errorf("read slice = %v, want %v", fake.readTimeout, readSlice)
	}
	if port.Timeout() != 3*time.Second {
		t.Errorf("Timeout() = %v", port.Timeout())
	}

	port.Write([]byte("#123P\r\n"))
	if fake.written.String() != "#123P\r\n" {
		t.Errorf("written = %q", fake.written.String())
	}
}

func TestOpenSerial_Error(t *testing.T) {
	withOpenPort(t, func(string, *serial.Mode) (serialHandle, error) {
		return nil, errors.New("no such device")
	})

	_, err := OpenSerial("/dev/missing", 9600, time.Second)
	if err == nil || !strings.Contains(err.Error(), "/dev/missing") {
		t.Errorf("expected error naming the port, got %v", err)
	}
}

func TestOpen_SelectsTransport(t *testing.T) {
	withOpenPort(t, func(string, *serial.Mode) (serialHandle, error) {
		return &fakeSerial{}, nil
	})

	_, info, err := Open(Endpoint{Address: "/dev/ttyS1", BaudRate: 19200})
	if err != nil {
		t.Fatal(err)
	}
	if info != "Serial: /dev/ttyS1 @ 19200 baud" {
		t.Errorf("info = %q", info)
	}

	if _, _, err := Open(Endpoint{}); err == nil {
		t.Error("expected error for empty address")
	}

	if !IsWebSocket("wss://bridge.local/ws") || IsWebSocket("/dev/ttyUSB0") {
		t.Error("IsWebSocket misclassified address")
	}
}
