package mount

import (
	"testing"
	"time"
)

func TestLink_Exec_FireAndForget(t *testing.T) {
	port := &MockPort{}
	link := New(port, nil, nil)

	_, err := link.Exec(LXMove(MoveEast))
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if len(port.Written()) != 1 {
		t.Fatalf("expected one write, got %d", len(port.Written()))
	}
	if string(port.Written()[0]) != ":Me#" {
		t.Errorf("written = %q, want :Me#", port.Written()[0])
	}
}

func TestLink_Exec_WaitsForPredicate(t *testing.T) {
	port := &MockPort{
		Reply: func(written []byte) []byte { return []byte("06:30:15#") },
	}
	link := New(port, nil, nil)

	reply, err := link.Exec(GetRA())
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if string(reply) != "06:30:15#" {
		t.Errorf("reply = %q, want 06:30:15#", reply)
	}
}

func TestLink_Exec_Timeout(t *testing.T) {
	port := &MockPort{} // no reply ever queued
	link := New(port, nil, nil)

	cmd := GetRA()
	cmd.Timeout = 30 * time.Millisecond
	_, err := link.Exec(cmd)
	if err != ErrTimeout {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestLink_Exec_RecoversAfterWriteFailure(t *testing.T) {
	failingPort := &MockPort{FailWrites: 1}
	reopened := &MockPort{}
	reopenCalls := 0

	link := New(failingPort, func() (Port, error) {
		reopenCalls++
		return reopened, nil
	}, nil)

	if err := link.writeLocked([]byte(":Q#")); err != nil {
		t.Fatalf("writeLocked failed: %v", err)
	}
	if reopenCalls != 1 {
		t.Errorf("reopen calls = %d, want 1", reopenCalls)
	}
	if len(reopened.Written()) != 1 {
		t.Errorf("expected the retried write to land on the reopened port")
	}
}

func TestLink_Goto_SequencesThreeCommands(t *testing.T) {
	port := &MockPort{
		Reply: func(written []byte) []byte {
			switch string(written) {
			case ":Sr06:00:00#", ":Sd+45*00:00#":
				return []byte("1")
			case ":MS#":
				return []byte("0#")
			default:
				return []byte("1")
			}
		},
	}
	link := New(port, nil, nil)

	err := link.Goto("06:00:00", "+45*00:00")
	if err != nil {
		t.Fatalf("Goto failed: %v", err)
	}
	if len(port.Written()) != 3 {
		t.Errorf("expected 3 sequenced writes (RA, DEC, slew), got %d", len(port.Written()))
	}
}

func TestLink_SetPEC_SendsHeaderThenData(t *testing.T) {
	port := &MockPort{
		Reply: func(written []byte) []byte {
			if string(written) == "!PI#" {
				// fire-and-forget: no reply expected or consumed
				return nil
			}
			return []byte("!\n")
		},
	}
	link := New(port, nil, nil)

	if err := link.SetPEC([]int{1, 2, 3, 4}); err != nil {
		t.Fatalf("SetPEC failed: %v", err)
	}
	written := port.Written()
	if len(written) != 2 {
		t.Fatalf("expected 2 writes (header, data), got %d", len(written))
	}
	if string(written[0]) != "!PI#" {
		t.Errorf("first write = %q, want !PI#", written[0])
	}
	if string(written[1]) != "PEC 2 1,2,3,4\n" {
		t.Errorf("second write = %q, want PEC 2 1,2,3,4\\n", written[1])
	}
}
