package messaging

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// ConversationKey derives the document id of the conversation between a and b about
// topicItemID. The pair is sorted first, so ConversationKey(t, a, b) == ConversationKey(t, b, a).
func ConversationKey(topicItemID, a, b string) string {
	if b < a {
		a, b = b, a
	}

	h, _ := blake2b.New(16, nil) // only errors for bad sizes/keys
	var n [4]byte
	for _, part := range []string{topicItemID, a, b} {
		// Length-prefix each part so ("ab","c") and ("a","bc") differ.
		binary.BigEndian.PutUint32(n[:], uint32(len(part)))
		h.Write(n[:])
		h.Write([]byte(part))
	}
	return "c" + hex.EncodeToString(h.Sum(nil))
}
