// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mfc

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Thermoquad/crucible/pkg/device"
	"github.com/Thermoquad/crucible/pkg/logger"
	"github.com/Thermoquad/crucible/pkg/transport"
)

// ============================================================
// Checksum Tests
// ============================================================

func TestCommandChecksum_KnownValues(t *testing.T) {
	tests := []struct {
		command  string
		expected string
	}{
		{"@@@101SX!5.0;", "6C"},
		{"@@@101FX?;", "EA"},
		{"@@@101OM?;", "E8"},
		{"@@@101CA!105;", "48"},
		{"@@@5FX?;", "8D"},
		// Low sums are zero padded to two digits
		{"@@@101SX!1;", "0A"},
		{"@@@104SX!3;", "0F"},
		// Anything after the terminator is ignored
		{"@@@101FX?;EA", "EA"},
		{"@@@101FX?;00", "EA"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			got, err := CommandChecksum(tt.command)
			if err != nil {
				t.Fatalf("CommandChecksum() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("CommandChecksum(%q) = %s, want %s", tt.command, got, tt.expected)
			}
		})
	}
}

func TestResponseChecksum_KnownValues(t *testing.T) {
	tests := []struct {
		response string
		expected string
	}{
		{"@@@101ACK5.0;", "EF"},
		{"@@@101ACK2.50;", "21"},
		{"@@@101ACKRUN;", "51"},
		{"@@@101ACK;", "5C"},
		{"@@@101ACK5.00;1F", "1F"},
	}

	for _, tt := range tests {
		t.Run(tt.response, func(t *testing.T) {
			got, err := ResponseChecksum(tt.response)
			if err != nil {
				t.Fatalf("ResponseChecksum() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("ResponseChecksum(%q) = %s, want %s", tt.response, got, tt.expected)
			}
		})
	}
}

func TestChecksum_NoTerminator(t *testing.T) {
	if _, err := CommandChecksum("@@@101FX?"); !errors.Is(err, device.ErrMalformedFrame) {
		t.Errorf("CommandChecksum without terminator: %v", err)
	}
	if _, err := CommandChecksum("101FX?;"); !errors.Is(err, device.ErrMalformedFrame) {
		t.Errorf("CommandChecksum without marker: %v", err)
	}
	if _, err := ResponseChecksum("@@@101ACK"); !errors.Is(err, device.ErrMalformedFrame) {
		t.Errorf("ResponseChecksum without terminator: %v", err)
	}
}

func TestChecksum_Deterministic(t *testing.T) {
	a, _ := CommandChecksum("@@@102SX!12.5;")
	b, _ := CommandChecksum("@@@102SX!12.5;")
	if a != b || len(a) != 2 {
		t.Errorf("checksums differ or wrong width: %q %q", a, b)
	}
}

// ============================================================
// Command Tests
// ============================================================

func TestBuildCommand(t *testing.T) {
	tests := []struct {
		name     string
		address  string
		command  Command
		expected string
	}{
		{"set flow", "101", SetFlow(5), "@@@101SX!5;"},
		{"set fractional flow", "101", SetFlow(12.5), "@@@101SX!12.5;"},
		{"query flow", "101", QueryFlow(), "@@@101FX?;EA"},
		{"query mode", "101", QueryMode(), "@@@101OM?;E8"},
		{"change address", "101", ChangeAddress("105"), "@@@101CA!105;48"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildCommand(tt.address, tt.command)
			if err != nil {
				t.Fatalf("BuildCommand() error = %v", err)
			}
			want := tt.expected
			if len(want) > 0 && want[len(want)-1] == Terminator {
				cs, _ := CommandChecksum(want)
				want += cs
			}
			if string(got) != want {
				t.Errorf("BuildCommand() = %q, want %q", got, want)
			}
		})
	}
}

func TestBuildCommand_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		address string
		command Command
	}{
		{"empty address", "", QueryFlow()},
		{"address with marker", "1@1", QueryFlow()},
		{"missing value", "101", Command{Op: OpSetFlow}},
		{"unexpected value", "101", Command{Op: OpQueryFlow, Value: "1"}},
		{"value with terminator", "101", Command{Op: OpSetFlow, Value: "1;"}},
		{"unknown op", "101", Command{Op: Op(42)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildCommand(tt.address, tt.command); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestOp_String(t *testing.T) {
	if OpSetFlow.String() != "set-flow" || OpQueryMode.Code() != "OM?" {
		t.Error("unexpected op naming")
	}
	if Op(9).String() != "Op(9)" {
		t.Errorf("unknown op string = %q", Op(9).String())
	}
}

// ============================================================
// Response Tests
// ============================================================

func withChecksum(body string) string {
	cs, err := ResponseChecksum(body)
	if err != nil {
		panic(err)
	}
	return body + cs
}

func TestResync(t *testing.T) {
	tests := []struct {
		name     string
		raw      []byte
		expected string
	}{
		{"clean", []byte("@@@101ACK5.0;EF"), "@@@101ACK5.0;EF"},
		{"garbage prefix", []byte("\x00\x7f@x@@@101ACK5.0;EF"), "@@@101ACK5.0;EF"},
		{"non-ascii bytes dropped", []byte("\xff\xfe@@@101ACK5.0;EF"), "@@@101ACK5.0;EF"},
		{"single marker", []byte("junk@101ACK5.0;EF"), "@@@101ACK5.0;EF"},
		{"no marker", []byte("ACK;00"), "ACK;00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resync(tt.raw); got != tt.expected {
				t.Errorf("Resync() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestValidateResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantErr  error
	}{
		{"valid", withChecksum("@@@101ACK5.0;"), nil},
		{"valid empty payload", withChecksum("@@@101ACK;"), nil},
		{"wrong checksum", "@@@101ACK5.0;EE", device.ErrChecksumMismatch},
		{"lower case checksum", "@@@101ACK5.0;ef", device.ErrChecksumMismatch},
		{"no terminator", "@@@101ACK5.0", device.ErrMalformedFrame},
		{"truncated checksum", "@@@101ACK5.0;E", device.ErrMalformedFrame},
		{"not acknowledged", withChecksum("@@@101XYZ5.0;"), device.ErrMalformedFrame},
		{"nak", withChecksum("@@@101NAK01;"), device.ErrDeviceError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResponse(tt.response)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateResponse() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateResponse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateResponse_NAKCode(t *testing.T) {
	err := ValidateResponse(withChecksum("@@@101NAK01;"))
	var devErr *device.DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected DeviceError, got %v", err)
	}
	if devErr.Code != 1 || devErr.Reason != "NAK01" {
		t.Errorf("DeviceError = %+v", devErr)
	}
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		response string
		expected string
	}{
		{"@@@101ACK5.0;EF", "5.0"},
		{"@@@101ACKRUN;51", "RUN"},
		{"@@@101ACK;5C", ""},
	}

	for _, tt := range tests {
		t.Run(tt.response, func(t *testing.T) {
			got, err := ParsePayload(tt.response)
			if err != nil {
				t.Fatalf("ParsePayload() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("ParsePayload() = %q, want %q", got, tt.expected)
			}
		})
	}
}

// ============================================================
// Driver Tests
// ============================================================

func newTestDriver(t *testing.T, port *transport.MockPort) *Driver {
	t.Helper()
	d, err := New(transport.NewBus("mfc", port), "101", device.WithLogger(logger.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestDriver_QueryFlow(t *testing.T) {
	port := transport.NewMockPort(nil)
	port.Queue([]byte(withChecksum("@@@101ACK2.50;")))
	d := newTestDriver(t, port)

	flow, err := d.QueryFlow(context.Background())
	if err != nil {
		t.Fatalf("QueryFlow() error = %v", err)
	}
	if flow != 2.5 {
		t.Errorf("QueryFlow() = %v, want 2.5", flow)
	}

	writes := port.Writes()
	if len(writes) != 1 || string(writes[0]) != "@@@101FX?;EA" {
		t.Errorf("writes = %q", writes)
	}
}

func TestDriver_RecoversFromNoise(t *testing.T) {
	port := transport.NewMockPort(nil)
	port.Queue(
		[]byte("@@@101ACK5.0;00"),
		[]byte("\xfe\x00@"+withChecksum("@@@101ACK5.0;")),
	)
	d := newTestDriver(t, port)

	if err := d.SetFlow(context.Background(), 5); err != nil {
		t.Fatalf("SetFlow() error = %v", err)
	}
	if port.WriteCount() != 2 {
		t.Errorf("WriteCount() = %d, want 2", port.WriteCount())
	}

	snap := d.Statistics().Snapshot()
	if snap.ChecksumErrors != 1 || snap.Successes != 1 {
		t.Errorf("statistics = %+v", snap)
	}
}

func TestDriver_RetryCap(t *testing.T) {
	port := transport.NewMockPort(func([]byte) []byte {
		return []byte("@@@101ACK5.0;00")
	})
	d := newTestDriver(t, port)

	err := d.SetFlow(context.Background(), 5)
	if !errors.Is(err, device.ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
	if port.WriteCount() != 6 {
		t.Errorf("WriteCount() = %d, want exactly 6", port.WriteCount())
	}

	var unreachable *device.UnreachableError
	if !errors.As(err, &unreachable) || unreachable.Device != "mfc@101" {
		t.Errorf("unexpected error detail: %v", err)
	}
}

func TestDriver_SilentDevice(t *testing.T) {
	port := transport.NewMockPort(nil)
	d := newTestDriver(t, port)

	_, err := d.QueryOperatingMode(context.Background())
	if !errors.Is(err, device.ErrUnreachable) || !errors.Is(err, device.ErrNoResponse) {
		t.Errorf("expected unreachable with no response, got %v", err)
	}
}

func TestDriver_UnparsableFlowIsRetried(t *testing.T) {
	port := transport.NewMockPort(nil)
	port.Queue(
		[]byte(withChecksum("@@@101ACKabc;")),
		[]byte(withChecksum("@@@101ACK1.25;")),
	)
	d := newTestDriver(t, port)

	flow, err := d.QueryFlow(context.Background())
	if err != nil || flow != 1.25 {
		t.Errorf("QueryFlow() = %v, %v", flow, err)
	}
}

func TestDriver_NAKIsRetried(t *testing.T) {
	port := transport.NewMockPort(func([]byte) []byte {
		return []byte(withChecksum("@@@101NAK02;"))
	})
	d := newTestDriver(t, port)

	err := d.SetFlow(context.Background(), 5)
	if !errors.Is(err, device.ErrUnreachable) {
		t.Fatalf("expected unreachable after repeated NAKs, got %v", err)
	}
	var devErr *device.DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected DeviceError as last cause, got %v", err)
	}
	if devErr.Device != "mfc@101" || devErr.Code != 2 {
		t.Errorf("DeviceError = %+v", devErr)
	}
	if port.WriteCount() != 6 {
		t.Errorf("WriteCount() = %d, want 6", port.WriteCount())
	}
}

func TestDriver_RecoversAfterNAK(t *testing.T) {
	port := transport.NewMockPort(nil)
	port.Queue(
		[]byte(withChecksum("@@@101NAK02;")),
		[]byte(withChecksum("@@@101ACK5.00;")),
	)
	d := newTestDriver(t, port)

	if err := d.SetFlow(context.Background(), 5); err != nil {
		t.Fatalf("SetFlow() error = %v", err)
	}
	if port.WriteCount() != 2 {
		t.Errorf("WriteCount() = %d, want 2", port.WriteCount())
	}
}

func TestDriver_ChangeAddress(t *testing.T) {
	port := transport.NewMockPort(nil)
	port.Queue(
		[]byte(withChecksum("@@@105ACK105;")),
		[]byte(withChecksum("@@@105ACKRUN;")),
	)
	d := newTestDriver(t, port)

	if err := d.ChangeAddress(context.Background(), "105"); err != nil {
		t.Fatalf("ChangeAddress() error = %v", err)
	}
	if d.Address() != "105" || d.Name() != "mfc@105" {
		t.Errorf("address = %s, name = %s", d.Address(), d.Name())
	}

	mode, err := d.QueryOperatingMode(context.Background())
	if err != nil || mode != "RUN" {
		t.Errorf("QueryOperatingMode() = %q, %v", mode, err)
	}
	if got := string(port.Writes()[1]); got[:6] != "@@@105" {
		t.Errorf("second command addressed %q", got)
	}
}

func TestDriver_RejectsNegativeFlow(t *testing.T) {
	port := transport.NewMockPort(nil)
	d := newTestDriver(t, port)
	if err := d.SetFlow(context.Background(), -1); err == nil {
		t.Error("expected error")
	}
	if port.WriteCount() != 0 {
		t.Error("nothing should be sent")
	}
}

// ============================================================
// Fuzz Tests
// ============================================================

func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// TestFuzzResponse_ChecksumMutation builds random valid replies and verifies
// that every single checksum character substitution is rejected
func TestFuzzResponse_ChecksumMutation(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	const hexDigits = "0123456789ABCDEF"

	for i := 0; i < rounds; i++ {
		address := strconv.Itoa(rng.Intn(254) + 1)
		payload := strconv.FormatFloat(rng.Float64()*200, 'f', rng.Intn(4), 64)
		response := withChecksum("@@@" + address + "ACK" + payload + ";")

		if err := ValidateResponse(response); err != nil {
			t.Fatalf("valid response %q rejected: %v", response, err)
		}
		if got, _ := ParsePayload(response); got != payload {
			t.Fatalf("ParsePayload(%q) = %q, want %q", response, got, payload)
		}

		pos := len(response) - 1 - rng.Intn(2)
		mutated := []byte(response)
		for mutated[pos] == response[pos] {
			mutated[pos] = hexDigits[rng.Intn(len(hexDigits))]
		}
		if err := ValidateResponse(string(mutated)); !errors.Is(err, device.ErrChecksumMismatch) {
			t.Fatalf("mutated response %q accepted: %v", mutated, err)
		}
	}
}

// TestFuzzResync_RandomBytes feeds random bytes through the reply path and
// verifies it never panics
func TestFuzzResync_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		data := make([]byte, rng.Intn(64))
		rng.Read(data)
		response := Resync(data)
		if ValidateResponse(response) == nil {
			ParsePayload(response)
		}
	}
}
