package serialmux

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptions_Normalise_Defaults(t *testing.T) {
	opts := PortOptions{}
	got, err := opts.Normalise()
	if err != nil {
		t.Fatalf("Normalise() error = %v", err)
	}
	want := PortOptions{BaudRate: 19200, DataBits: 8, StopBits: 1, Parity: "N"}
	if got != want {
		t.Errorf("Normalise() = %+v, want %+v", got, want)
	}
}

func TestPortOptions_Normalise(t *testing.T) {
	tests := []struct {
		name    string
		opts    PortOptions
		want    PortOptions
		wantErr bool
	}{
		{
			name: "explicit values kept",
			opts: PortOptions{BaudRate: 115200, DataBits: 7, StopBits: 2, Parity: "E"},
			want: PortOptions{BaudRate: 115200, DataBits: 7, StopBits: 2, Parity: "E"},
		},
		{
			name: "negative baud defaults",
			opts: PortOptions{BaudRate: -5},
			want: PortOptions{BaudRate: 19200, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name: "long parity names",
			opts: PortOptions{Parity: " odd "},
			want: PortOptions{BaudRate: 19200, DataBits: 8, StopBits: 1, Parity: "O"},
		},
		{name: "data bits too high", opts: PortOptions{DataBits: 9}, wantErr: true},
		{name: "data bits too low", opts: PortOptions{DataBits: 4}, wantErr: true},
		{name: "stop bits unsupported", opts: PortOptions{StopBits: 3}, wantErr: true},
		{name: "parity unsupported", opts: PortOptions{Parity: "mark"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.Normalise()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Normalise() expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalise() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalise() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPortOptions_Equal(t *testing.T) {
	if !(PortOptions{}).Equal(PortOptions{BaudRate: 19200, Parity: "none"}) {
		t.Error("defaults should equal their explicit form")
	}
	if (PortOptions{BaudRate: 9600}).Equal(PortOptions{}) {
		t.Error("different baud rates should not be equal")
	}
	if (PortOptions{DataBits: 9}).Equal(PortOptions{DataBits: 9}) {
		t.Error("invalid options should never compare equal")
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 9600, StopBits: 2, Parity: "E"}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode() error = %v", err)
	}
	if mode.BaudRate != 9600 || mode.DataBits != 8 {
		t.Errorf("mode = %+v", mode)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("StopBits = %v, want TwoStopBits", mode.StopBits)
	}
	if mode.Parity != serial.EvenParity {
		t.Errorf("Parity = %v, want EvenParity", mode.Parity)
	}

	mode, err = PortOptions{}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode() error = %v", err)
	}
	if mode.StopBits != serial.OneStopBit || mode.Parity != serial.NoParity {
		t.Errorf("default mode = %+v", mode)
	}

	if _, err := (PortOptions{Parity: "X"}).SerialMode(); err == nil {
		t.Error("expected error for unsupported parity")
	}
}
