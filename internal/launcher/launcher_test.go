package launcher

import (
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestReceiveThreadIDSuccess(t *testing.T) {
	cmd := exec.Command("printf", "task-123\n")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatalf("StdoutPipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	id, err := receiveThreadID(cmd, stdout)
	if err != nil {
		t.Fatalf("receiveThreadID: %v", err)
	}
	if id != "task-123" {
		t.Fatalf("id = %q, want %q", id, "task-123")
	}
}

func TestReceiveThreadIDEmptyLine(t *testing.T) {
	cmd := exec.Command("printf", "\n")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatalf("StdoutPipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err = receiveThreadID(cmd, stdout)
	if err == nil {
		t.Fatalf("expected error for empty handshake line")
	}
}

func TestReceiveThreadIDClosesWithoutOutput(t *testing.T) {
	cmd := exec.Command("true")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatalf("StdoutPipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err = receiveThreadID(cmd, stdout)
	if err == nil {
		t.Fatalf("expected error when worker exits without a handshake line")
	}
	if !strings.Contains(err.Error(), "handshake") {
		t.Fatalf("error = %v, want mention of handshake", err)
	}
}

func TestHandshakeTimeoutIsBounded(t *testing.T) {
	if HandshakeTimeout != 60*time.Second {
		t.Fatalf("HandshakeTimeout = %s, want 60s", HandshakeTimeout)
	}
}
