package transformer

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

const (
	mimeUnknown = "application/unknown"
	mimeBinary  = "application/octet-stream"
)

// Voice-note and plain audio defaults applied when nothing else matches.
const (
	mimeAudioVoice = "audio/ogg; codecs=opus"
	mimeAudioPlain = "audio/mpeg"
)

// MimeForLink infers the MIME type of outbound media. Resolution order:
// link path extension, then object-storage query hints, then the explicit
// filename, then the per-kind fallback.
func MimeForLink(link, filename, fallback string) string {
	if u, err := url.Parse(link); err == nil {
		if m := byExtension(u.Path); m != "" {
			return m
		}
		q := u.Query()
		if ct := strings.TrimSpace(q.Get("response-content-type")); ct != "" {
			return ct
		}
		if cd := q.Get("response-content-disposition"); cd != "" {
			if _, params, err := mime.ParseMediaType(cd); err == nil {
				if m := byExtension(params["filename"]); m != "" {
					return m
				}
			}
		}
	}
	if m := byExtension(filename); m != "" {
		return m
	}
	if fallback != "" {
		return fallback
	}
	return mimeUnknown
}

// AudioFallback picks the default audio MIME type for voice notes vs plain
// audio files.
func AudioFallback(voice bool) string {
	if voice {
		return mimeAudioVoice
	}
	return mimeAudioPlain
}

// FilenameForMime synthesizes a filename for inbound media that carries no
// name of its own.
func FilenameForMime(id, mimeType string) string {
	ext := extensionForMime(mimeType)
	if ext == "" {
		ext = ".bin"
	}
	return id + ext
}

func byExtension(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return ""
	}
	if m, ok := wellKnownExt[ext]; ok {
		return m
	}
	return mime.TypeByExtension(ext)
}

func extensionForMime(mimeType string) string {
	base := mimeType
	if i := strings.Index(base, ";"); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	if ext, ok := wellKnownMime[base]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(base)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

// Platform mime tables differ per OS; the types the network actually ships
// are pinned here so filenames stay deterministic.
var wellKnownExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".mp4":  "video/mp4",
	".3gp":  "video/3gpp",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/ogg; codecs=opus",
	".aac":  "audio/aac",
	".pdf":  "application/pdf",
	".vcf":  "text/vcard",
}

var wellKnownMime = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"video/mp4":       ".mp4",
	"video/3gpp":      ".3gp",
	"audio/mpeg":      ".mp3",
	"audio/ogg":       ".ogg",
	"audio/aac":       ".aac",
	"application/pdf": ".pdf",
	"text/vcard":      ".vcf",
}
