// Package bluez implements the scanning adapter over the BlueZ D-Bus API.
//
// Scanning uses org.bluez.Adapter1 discovery with an LE transport filter.
// Sightings arrive as ObjectManager.InterfacesAdded signals for new devices
// and Properties.PropertiesChanged signals carrying fresh RSSI or
// advertisement data for known ones. Device1 properties are merged per
// object path and each sighting is dispatched as one Advertisement.
//
// The D-Bus backend is only available on Linux. On other platforms New
// returns adapter.ErrNotSupported.
package bluez
