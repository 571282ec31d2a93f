package conversation

import (
	"math/rand"
	"strings"
	"sync"

	"anoa.com/lostfound/internal/entity"
)

var (
	nameAdjectives = []string{"Swift", "Bright", "Kind", "Smart", "Brave", "Wise", "Gentle", "Strong"}
	nameNouns      = []string{"Helper", "Finder", "Owner", "Student", "Member", "Friend", "Guardian", "Hero"}
)

// DisplayNamer hands out pseudonyms for matched chats, e.g. "BraveHelperO" for
// an owner. A fixed seed yields a fixed sequence.
type DisplayNamer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewDisplayNamer(seed int64) *DisplayNamer {
	return &DisplayNamer{rng: rand.New(rand.NewSource(seed))}
}

func (n *DisplayNamer) Name(role entity.ParticipantRole) string {
	n.mu.Lock()
	adjective := nameAdjectives[n.rng.Intn(len(nameAdjectives))]
	noun := nameNouns[n.rng.Intn(len(nameNouns))]
	n.mu.Unlock()

	initial := ""
	if role != "" {
		initial = strings.ToUpper(string(role)[:1])
	}
	return adjective + noun + initial
}
