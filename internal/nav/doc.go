// Package nav holds the geometry used by the rover controller: rhumb-line
// bearings, signed angle normalization, the per-axis waypoint box test and
// the differential-drive steering law.
//
// Everything here is pure and safe for concurrent use.
package nav
