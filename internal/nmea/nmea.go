// Package nmea splits and checks NMEA 0183 sentences.
package nmea

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

type Sentence struct {
	// Talker is the two-letter source prefix (GP, GN, HC, ...).
	Talker string
	// Type is the three-letter sentence type, upper case.
	Type string
	// Fields is the comma-split payload including the address field.
	Fields []string
}

// Parse validates the checksum and splits the payload. Sentences without a
// checksum are rejected.
func Parse(line string) (Sentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Sentence{}, fmt.Errorf("nmea: missing '$'")
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return Sentence{}, fmt.Errorf("nmea: missing checksum")
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return Sentence{}, fmt.Errorf("nmea: short checksum")
	}
	want, err := hex.DecodeString(ck[:2])
	if err != nil || len(want) != 1 {
		return Sentence{}, fmt.Errorf("nmea: bad checksum")
	}
	if Checksum(payload) != want[0] {
		return Sentence{}, fmt.Errorf("nmea: checksum mismatch")
	}

	parts := strings.Split(payload, ",")
	addr := parts[0]
	if len(addr) < 3 {
		return Sentence{}, fmt.Errorf("nmea: short type")
	}
	// GNxxx, GPxxx, HCxxx: the type is always the last three characters.
	s := Sentence{Type: strings.ToUpper(addr[len(addr)-3:]), Fields: parts}
	if len(addr) > 3 {
		s.Talker = strings.ToUpper(addr[:len(addr)-3])
	}
	return s, nil
}

// Checksum is the XOR of every payload byte between '$' and '*'.
func Checksum(payload string) byte {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return ck
}

// Format frames payload as a complete sentence.
func Format(payload string) string {
	return fmt.Sprintf("$%s*%02X", payload, Checksum(payload))
}

// Field returns field i trimmed, or "" when the sentence is shorter.
func (s Sentence) Field(i int) string {
	if i < 0 || i >= len(s.Fields) {
		return ""
	}
	return strings.TrimSpace(s.Fields[i])
}

// Float parses field i; ok is false for empty or malformed fields.
func (s Sentence) Float(i int) (float64, bool) {
	v := s.Field(i)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
