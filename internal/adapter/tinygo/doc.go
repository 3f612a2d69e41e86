// Package tinygo implements the scanning adapter over tinygo.org/x/bluetooth,
// which drives BlueZ on Linux, CoreBluetooth on macOS and WinRT on Windows.
//
// The library exposes one process-wide default radio and a blocking Scan
// call, so the adapter runs the scan on its own goroutine between the first
// registration and the last removal.
package tinygo
