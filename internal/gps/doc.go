// Package gps reads a GNSS receiver and answers the control loop's position
// queries with the latest fix.
//
// Two sources are supported: NMEA 0183 over a serial port (RMC for position,
// speed and course, GGA for fix quality) and gpsd's JSON stream. A fix older
// than Config.StaleAfter is reported as no fix.
package gps
