package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"product-import-service/internal/models"
)

// Key derives the idempotency key of an import request from its resolved
// source, URL, inline data and uploaded file. Maps marshal with sorted keys,
// so equal payloads hash alike whatever their construction order.
func Key(source models.SourceType, req *models.ImportRequest) (string, error) {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.TrimSpace(req.URL)))
	h.Write([]byte{'|'})

	if req.Data != nil {
		data := req.Data
		if s, ok := data.(string); ok {
			data = strings.TrimSpace(s)
		}
		canonical, err := json.Marshal(data)
		if err != nil {
			return "", err
		}
		h.Write(canonical)
	}
	h.Write([]byte{'|'})

	if req.File != nil {
		digest := sha256.Sum256(req.File.Content)
		h.Write(digest[:])
	}
	return "imp:" + hex.EncodeToString(h.Sum(nil)), nil
}
