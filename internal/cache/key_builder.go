package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// BuildKey hashes the upstream request body so identical converted
// requests share a cache entry regardless of how the prompt was phrased
// on input (e.g. string vs single text part content).
func BuildKey(kind, model, versionID string, upstreamBody any) (Key, error) {
	modelID := strings.TrimSpace(model)

	body, err := json.Marshal(upstreamBody)
	if err != nil {
		return Key{}, err
	}

	sum := sha256.Sum256([]byte("model:" + modelID + "|body:" + string(body)))

	return Key{
		Kind:      kind,
		ModelID:   modelID,
		VersionID: strings.TrimSpace(versionID),
		Hash:      hex.EncodeToString(sum[:]),
	}, nil
}
