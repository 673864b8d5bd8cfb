package process

import "bytes"

type mediaKind int

const (
	kindOther mediaKind = iota
	kindAudio
	kindVideo
)

type signature struct {
	kind        mediaKind
	ext         string
	contentType string
}

// detectSignature classifies a buffer from its leading bytes. Container
// formats that usually carry video (mp4, webm, mov) classify as video so
// the audio track gets extracted first; pure audio formats go straight
// to transcription. Anything unrecognized is treated as a document.
func detectSignature(data []byte) signature {
	if len(data) < 12 {
		return signature{kind: kindOther}
	}

	switch {
	case bytes.HasPrefix(data, []byte("ID3")),
		data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return signature{kind: kindAudio, ext: ".mp3", contentType: "audio/mpeg"}
	case bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return signature{kind: kindAudio, ext: ".wav", contentType: "audio/wav"}
	case bytes.HasPrefix(data, []byte("OggS")):
		return signature{kind: kindAudio, ext: ".ogg", contentType: "audio/ogg"}
	case bytes.HasPrefix(data, []byte("fLaC")):
		return signature{kind: kindAudio, ext: ".flac", contentType: "audio/flac"}
	case bytes.Equal(data[4:8], []byte("ftyp")):
		// ISO base media: mp4, m4a, mov. The brand distinguishes the
		// audio-only variant.
		if bytes.Equal(data[8:12], []byte("M4A ")) {
			return signature{kind: kindAudio, ext: ".m4a", contentType: "audio/mp4"}
		}
		return signature{kind: kindVideo, ext: ".mp4", contentType: "video/mp4"}
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return signature{kind: kindVideo, ext: ".webm", contentType: "video/webm"}
	}
	return signature{kind: kindOther}
}
