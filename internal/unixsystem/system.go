package unixsystem

import (
	"os"
	"time"

	"github.com/e7canasta/pivid/internal/pvtime"
)

// System is the narrow OS capability this repository's components take as
// a constructor parameter instead of reaching for package-level globals
// (spec.md §9: "modeled as a passed-in handle, not a process-global, to
// keep tests independent"), grounded on original_source/unix_system.cpp's
// UnixSystem interface.
type System interface {
	// SystemTime returns the current wall-clock time as Seconds since the
	// Unix epoch, used for scheduling presentation.
	SystemTime() pvtime.SystemTime

	// MakeSignal creates a new latching thread signal.
	MakeSignal() *Signal

	// Stat reports whether path exists and, if so, its size. The script
	// runner's FileInfo does not call it; it opens the file through the
	// decoder instead.
	Stat(path string) (size int64, err error)
}

// Real is the production System, backed by the actual OS clock and
// filesystem.
type Real struct{}

// NewReal returns the production System implementation.
func NewReal() Real { return Real{} }

func (Real) SystemTime() pvtime.SystemTime { return pvtime.Now() }

func (Real) MakeSignal() *Signal { return NewSignal() }

func (Real) Stat(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Fake is a deterministic System for tests: its clock advances only when
// Advance is called, so scenario tests can drive system time explicitly
// instead of racing the wall clock - the same dependency-injection
// discipline spec.md §9 calls for applied to time as well as to the
// decoder and driver.
type Fake struct {
	now pvtime.SystemTime
}

// NewFake creates a Fake System starting at the given system time.
func NewFake(start pvtime.SystemTime) *Fake {
	return &Fake{now: start}
}

func (f *Fake) SystemTime() pvtime.SystemTime { return f.now }

func (f *Fake) Advance(d time.Duration) {
	f.now += pvtime.FromDuration(d)
}

func (f *Fake) MakeSignal() *Signal { return NewSignal() }

func (f *Fake) Stat(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
