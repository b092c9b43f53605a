package display

import "testing"

func TestImageBufferRefcount(t *testing.T) {
	released := false
	b := NewImageBuffer(2, 2, FormatRGBA, []int{8}, [][]byte{make([]byte, 16)}, func() {
		released = true
	})

	b2 := b.Retain()
	b.Release()
	if released {
		t.Fatal("released after first Release with outstanding reference")
	}
	b2.Release()
	if !released {
		t.Fatal("expected release after last reference dropped")
	}
}

func TestLoadedImageRetainRelease(t *testing.T) {
	count := 0
	b := NewImageBuffer(1, 1, FormatRGBA, nil, nil, func() { count++ })
	li := LoadedImage{Buffer: b}
	li2 := li.Retain()
	li.Release()
	if count != 0 {
		t.Fatalf("released too early: count=%d", count)
	}
	li2.Release()
	if count != 1 {
		t.Fatalf("expected exactly one release, got %d", count)
	}
}

func TestSoftwareDriverScanAndCommit(t *testing.T) {
	d := NewSoftwareDriver(Status{ConnectorID: 1, Name: "HDMI-A-1", Detected: true})

	outs, err := d.ScanOutputs()
	if err != nil || len(outs) != 1 {
		t.Fatalf("ScanOutputs() = %v, %v", outs, err)
	}

	if !d.ReadyForUpdate(1) {
		t.Fatal("expected connector 1 ready")
	}
	if d.ReadyForUpdate(99) {
		t.Fatal("expected unknown connector not ready")
	}

	buf, err := d.MakeBuffer(4, 4, 32)
	if err != nil {
		t.Fatalf("MakeBuffer: %v", err)
	}
	li, err := d.ImportImage(buf)
	if err != nil {
		t.Fatalf("ImportImage: %v", err)
	}

	mode := Mode{Width: 1920, Height: 1080, RefreshHz: 60}
	layers := []DisplayLayer{{Image: li, Dst: IntRect{W: 1920, H: 1080}}}
	if err := d.UpdateOutput(1, mode, layers); err != nil {
		t.Fatalf("UpdateOutput: %v", err)
	}

	got, gotMode, ok := d.LastCommit(1)
	if !ok || gotMode != mode || len(got) != 1 {
		t.Fatalf("LastCommit() = %v, %v, %v", got, gotMode, ok)
	}

	if err := d.UpdateOutput(99, mode, nil); err == nil {
		t.Fatal("expected error committing to unknown connector")
	}
}

func TestSoftwareDriverHotplug(t *testing.T) {
	d := NewSoftwareDriver(Status{ConnectorID: 1, Detected: true})
	d.SetDetected(1, false)
	outs, _ := d.ScanOutputs()
	if outs[0].Detected {
		t.Fatal("expected Detected=false after SetDetected(false)")
	}

	d.RemoveOutput(1)
	if d.ReadyForUpdate(1) {
		t.Fatal("expected removed connector to not be ready")
	}
}
