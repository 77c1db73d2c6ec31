package gossip

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// sentinel is the literal wire prefix spec.md §4.7/§9 requires be preserved
// byte-exactly for compatibility with prior deployments.
const sentinel = "heartbeat::"

type heartbeatRecord struct {
	Node string `json:"node"`
}

// encodeHeartbeat builds the plaintext payload: the literal sentinel
// followed by a JSON-encoded {"node": "<peer>"} record. JSON is this
// implementation's choice of "a format both sides agree on" (spec.md
// §4.7 leaves the encoding open as long as both ends share it).
func encodeHeartbeat(node string) ([]byte, error) {
	rec, err := json.Marshal(heartbeatRecord{Node: node})
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(sentinel)+len(rec))
	buf = append(buf, sentinel...)
	buf = append(buf, rec...)
	return buf, nil
}

// decodeHeartbeat extracts the peer name from a plaintext payload. A
// payload that does not start with the sentinel is rejected, per spec.md
// §4.7's "packets that do not start with the heartbeat:: sentinel (after
// decryption) are silently dropped".
func decodeHeartbeat(payload []byte) (string, error) {
	if !bytes.HasPrefix(payload, []byte(sentinel)) {
		return "", fmt.Errorf("gossip: missing %q sentinel", sentinel)
	}
	var rec heartbeatRecord
	if err := json.Unmarshal(payload[len(sentinel):], &rec); err != nil {
		return "", fmt.Errorf("gossip: malformed heartbeat record: %w", err)
	}
	return rec.Node, nil
}
