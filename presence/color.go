package presence

import (
	"fmt"
	"hash/fnv"
)

// ColorFromIdentity gives every participant a stable display colour.
func ColorFromIdentity(identity string) string {
	h := fnv.New32a()
	h.Write([]byte(identity))

	hue := int(h.Sum32() % 360)
	return fmt.Sprintf("hsl(%d, 70%%, 55%%)", hue)
}
