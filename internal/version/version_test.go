package version

import "testing"

func TestClientName(t *testing.T) {
	old := Version
	Version = "1.2.0"
	t.Cleanup(func() { Version = old })

	if got := ClientName("host"); got != "vcam-host/1.2.0" {
		t.Errorf("ClientName = %q", got)
	}
}

func TestGetCarriesProtocol(t *testing.T) {
	info := Get()
	if info.Protocol != Protocol {
		t.Errorf("Protocol = %d, want %d", info.Protocol, Protocol)
	}
	if info.Platform == "" || info.GoVersion == "" {
		t.Errorf("runtime fields missing: %+v", info)
	}
}
