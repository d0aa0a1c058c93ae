package hub

import (
	"encoding/binary"
	"fmt"
	"math"
)

// CarFrame is one decoded car entry, shaped identically whether it came
// from the JSON telemetry path or the binary decoder (spec §4.5).
type CarFrame struct {
	CarID      int
	LapDistPct float64
	Speed      float64
	Lap        int
	Position   int
}

// TelemetryFrame is the decoded result of a telemetry_binary payload.
type TelemetryFrame struct {
	TimestampMs float64
	Cars        []CarFrame
	Truncated   bool
}

const carRecordSize = 14

// DecodeTelemetryFrame parses the fixed little-endian layout from spec §4.5:
//
//	offset  size  field
//	 0      8     timestamp   (float64 ms since epoch)
//	 8      1     carCount    (uint8)
//	 9      N*14  car records, each:
//	   0   2   carId       (uint16)
//	   2   4   lapDistPct  (float32)
//	   6   4   speed       (float32)
//	  10   2   lap         (uint16)
//	  12   1   position    (uint8)
//	  13   1   padding
//
// A buffer shorter than the declared car count is not an error: the decoded
// prefix is returned with Truncated=true so the caller can log the
// truncation without dropping the frame (best-effort, spec §4.5).
func DecodeTelemetryFrame(data []byte) (TelemetryFrame, error) {
	if len(data) < 9 {
		return TelemetryFrame{}, fmt.Errorf("telemetry frame too short: %d bytes", len(data))
	}

	tsBits := binary.LittleEndian.Uint64(data[0:8])
	timestampMs := math.Float64frombits(tsBits)
	carCount := int(data[8])

	frame := TelemetryFrame{TimestampMs: timestampMs}
	offset := 9
	for i := 0; i < carCount; i++ {
		if offset+carRecordSize > len(data) {
			frame.Truncated = true
			break
		}
		rec := data[offset : offset+carRecordSize]
		car := CarFrame{
			CarID:      int(binary.LittleEndian.Uint16(rec[0:2])),
			LapDistPct: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[2:6]))),
			Speed:      float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[6:10]))),
			Lap:        int(binary.LittleEndian.Uint16(rec[10:12])),
			Position:   int(rec[12]),
		}
		frame.Cars = append(frame.Cars, car)
		offset += carRecordSize
	}

	return frame, nil
}
