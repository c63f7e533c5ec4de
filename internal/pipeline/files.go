package pipeline

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"photobook/internal/models"
)

// fileExtension returns the lower-cased extension without the dot. Names
// like ".jpg" or "photo." have none.
func fileExtension(filename string) string {
	dot := strings.LastIndexByte(filename, '.')
	if dot > 0 && dot < len(filename)-1 {
		return strings.ToLower(filename[dot+1:])
	}
	return ""
}

// baseName strips any directory part, with either separator.
func baseName(name string) string {
	slash := strings.LastIndexAny(name, `/\`)
	if slash >= 0 && slash < len(name)-1 {
		return name[slash+1:]
	}
	return name
}

func contentTypeFor(filename string) string {
	switch fileExtension(filename) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "heic":
		return "image/heic"
	case "heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// StorageKey is {ownerId}/{photoId}.{extension}.
func StorageKey(ownerID, photoID uuid.UUID, ext string) string {
	if ext == "" {
		return fmt.Sprintf("%s/%s", ownerID, photoID)
	}
	return fmt.Sprintf("%s/%s.%s", ownerID, photoID, ext)
}

// ThumbnailKey replaces the original's extension with _{size}.jpg.
func ThumbnailKey(storageKey string, size models.SizeClass) string {
	base := strings.TrimSuffix(storageKey, path.Ext(path.Base(storageKey)))
	return base + "_" + size.Lower() + ".jpg"
}
