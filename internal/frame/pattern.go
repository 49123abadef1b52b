package frame

import "time"

// TestPattern fills a BGRA32 frame with a diagonal gradient that drifts with
// phase, so a consumer can tell a live idle feed from a frozen one.
func TestPattern(width, height uint32, phase uint32) Frame {
	f := New(width, height)
	stride := int(f.BytesPerRow)
	for y := range int(height) {
		row := f.Data[y*stride : y*stride+int(width)*BytesPerPixel]
		for x := range int(width) {
			px := row[x*BytesPerPixel : x*BytesPerPixel+BytesPerPixel]
			px[0] = byte((uint32(x) + phase) * 255 / max(width, 1))
			px[1] = byte((uint32(y) + phase/2) * 255 / max(height, 1))
			px[2] = byte(phase)
			px[3] = 0xff
		}
	}
	return f
}

// Splash renders the card shown to consumers while the camera is stopped:
// a dark vertical gradient with a lighter band across the middle third.
func Splash(width, height uint32) Frame {
	f := New(width, height)
	stride := int(f.BytesPerRow)
	bandTop, bandBottom := height/3, 2*height/3
	for y := range int(height) {
		shade := byte(32 + uint32(y)*48/max(height, 1))
		if uint32(y) >= bandTop && uint32(y) < bandBottom {
			shade += 96
		}
		row := f.Data[y*stride : y*stride+int(width)*BytesPerPixel]
		for x := 0; x < len(row); x += BytesPerPixel {
			row[x] = shade + 24 // blue tint
			row[x+1] = shade
			row[x+2] = shade
			row[x+3] = 0xff
		}
	}
	f.Timestamp = uint64(time.Now().UnixNano())
	return f
}
