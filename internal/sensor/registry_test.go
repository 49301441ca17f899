package sensor

import "testing"

func TestRegistryDiscoverDeduplicates(t *testing.T) {
	r := NewRegistry()
	s := Sensor{ID: "ble:1", Name: "Strap"}

	if !r.Discover(s) {
		t.Fatal("first Discover() should insert")
	}
	for i := 0; i < 5; i++ {
		dup := s
		dup.Name = "Other name"
		if r.Discover(dup) {
			t.Fatalf("Discover() #%d of a known ID should be rejected", i+2)
		}
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	got, _ := r.Get("ble:1")
	if got.Name != "Strap" {
		t.Errorf("Name = %q, want original %q", got.Name, "Strap")
	}
}

func TestRegistryDiscoverRejectsEmptyID(t *testing.T) {
	r := NewRegistry()
	if r.Discover(Sensor{}) {
		t.Error("Discover() should reject a sensor without ID")
	}
}

func TestRegistrySelectUnknown(t *testing.T) {
	r := NewRegistry()
	if r.Select("ble:missing") {
		t.Error("Select() of an undiscovered ID should fail")
	}
	if _, ok := r.Selected(); ok {
		t.Error("Selected() should be empty")
	}
}

func TestRegistrySelectedTracksState(t *testing.T) {
	r := NewRegistry()
	r.Discover(Sensor{ID: "ble:1"})
	r.Select("ble:1")

	r.SetState("ble:1", StateConnected)
	sel, ok := r.Selected()
	if !ok {
		t.Fatal("Selected() should be set")
	}
	if sel.State != StateConnected {
		t.Errorf("selected State = %v, want %v", sel.State, StateConnected)
	}

	r.SetState("ble:1", StateNotConnected)
	sel, _ = r.Selected()
	if sel.State != StateNotConnected {
		t.Errorf("selected State = %v, want %v", sel.State, StateNotConnected)
	}
}

func TestRegistrySetStateUnknown(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.SetState("ble:ghost", StateConnected); ok {
		t.Error("SetState() of an unknown ID should fail")
	}
	if r.Len() != 0 {
		t.Error("SetState() must not create entries")
	}
}

func TestRegistryClearSelection(t *testing.T) {
	r := NewRegistry()
	r.Discover(Sensor{ID: "ble:1"})
	r.Select("ble:1")

	prev, ok := r.ClearSelection()
	if !ok || prev.ID != "ble:1" {
		t.Errorf("ClearSelection() = %v, %v; want ble:1, true", prev.ID, ok)
	}
	if _, ok := r.Selected(); ok {
		t.Error("Selected() should be empty after ClearSelection()")
	}
	if !r.Contains("ble:1") {
		t.Error("ClearSelection() must not remove the sensor")
	}
}

func TestRegistrySensorsSorted(t *testing.T) {
	r := NewRegistry()
	for _, id := range []ID{"wearable:w", "ble:b", "ble:a", "sim:f"} {
		r.Discover(Sensor{ID: id})
	}
	got := r.Sensors()
	want := []ID{"ble:a", "ble:b", "sim:f", "wearable:w"}
	if len(got) != len(want) {
		t.Fatalf("Sensors() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("Sensors()[%d] = %q, want %q", i, got[i].ID, want[i])
		}
	}
}

func TestRegistryLastHeartRate(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.LastHeartRate(); ok {
		t.Error("LastHeartRate() should be unset initially")
	}
	r.RecordHeartRate(0)
	hr, ok := r.LastHeartRate()
	if !ok || hr != 0 {
		t.Errorf("LastHeartRate() = %d, %v; want 0, true", hr, ok)
	}
}
