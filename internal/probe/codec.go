package probe

import (
	"bytes"
	"encoding/gob"

	"netlens/internal/model"
)

// encodeFrame serializes a raw frame for the wire. Frames travel gob-encoded
// so the engine side receives exactly the capture collaborator contract:
// one link-layer frame plus its timestamp per message.
func encodeFrame(frame model.RawFrame) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(frame); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFrame(data []byte) (model.RawFrame, error) {
	var frame model.RawFrame
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&frame)
	return frame, err
}
