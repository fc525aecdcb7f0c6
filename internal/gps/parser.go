// Package gps turns raw receiver bytes into the current fix. It keeps
// only the latest reading; history and motion do not matter for a
// stationary site.
package gps

import (
	"fmt"
	"strings"
	"time"

	"github.com/dumacp/gpsnmea"
)

// maxSentence is the NMEA 0183 sentence cap including "$" and checksum.
const maxSentence = 82

// Fix is the satellite time/position reading. Locked is true only while
// the receiver reports valid RMC sentences.
type Fix struct {
	Locked     bool
	Time       time.Time
	Lat        float64
	Lon        float64
	Satellites int
}

// Parser accumulates receiver bytes, splits them into NMEA sentences
// and keeps the latest fix. It is fed from a single thread.
type Parser struct {
	line      []byte
	fix       Fix
	badFrames int
}

func NewParser() *Parser {
	return &Parser{line: make([]byte, 0, maxSentence)}
}

// Parse consumes a chunk of receiver bytes. Sentences may arrive split
// across chunks.
func (p *Parser) Parse(data []byte) {
	for _, b := range data {
		switch b {
		case '\r', '\n':
			if len(p.line) > 0 {
				p.sentence(string(p.line))
				p.line = p.line[:0]
			}
		default:
			if len(p.line) >= maxSentence {
				p.badFrames++
				p.line = p.line[:0]
				continue
			}
			p.line = append(p.line, b)
		}
	}
}

// minSentence rejects fragments too short to carry a full RMC/GGA
// payload before they reach the field parser.
const minSentence = 35

func (p *Parser) sentence(s string) {
	if !strings.HasPrefix(s, "$") {
		p.badFrames++
		return
	}
	if (strings.HasPrefix(s, "$GPRMC") || strings.HasPrefix(s, "$GPGGA")) && len(s) < minSentence {
		p.badFrames++
		return
	}
	switch {
	case strings.HasPrefix(s, "$GPRMC"):
		vg := gpsnmea.ParseRMC(s)
		if vg == nil {
			p.badFrames++
			return
		}
		if !vg.Validity {
			p.fix.Locked = false
			return
		}
		t, err := parseTimeDate(s, vg.TimeStamp)
		if err != nil {
			p.badFrames++
			return
		}
		p.fix.Locked = true
		p.fix.Time = t
		p.fix.Lat = gpsnmea.LatLongToDecimalDegree(vg.Lat, vg.LatCord)
		p.fix.Lon = gpsnmea.LatLongToDecimalDegree(vg.Long, vg.LongCord)
	case strings.HasPrefix(s, "$GPGGA"):
		vg := gpsnmea.ParseGGA(s)
		if vg == nil {
			p.badFrames++
			return
		}
		p.fix.Satellites = int(vg.NumberSat)
	default:
		// other sentence types pass through uncounted
	}
}

// parseTimeDate combines the RMC time stamp with the date field
// (position 9, ddmmyy) into one UTC instant.
func parseTimeDate(sentence, timeStamp string) (time.Time, error) {
	fields := strings.Split(sentence, ",")
	if len(fields) < 10 || len(fields[9]) < 6 {
		return time.Time{}, fmt.Errorf("RMC without date: %q", sentence)
	}
	ts := timeStamp
	if i := strings.IndexByte(ts, '.'); i >= 0 {
		ts = ts[:i]
	}
	return time.Parse("020106 150405", fields[9][:6]+" "+ts)
}

// Fix returns the latest reading.
func (p *Parser) Fix() Fix {
	return p.fix
}

// Clear drops the fix and the lock so stale time cannot be trusted
// after a receiver restart.
func (p *Parser) Clear() {
	p.fix = Fix{}
	p.line = p.line[:0]
}

// BadFrames returns the count of malformed sentences since the last
// ResetBadFrames call.
func (p *Parser) BadFrames() int {
	return p.badFrames
}

func (p *Parser) ResetBadFrames() {
	p.badFrames = 0
}
