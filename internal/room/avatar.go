package room

import (
	"fmt"
	"math/rand"
	"strings"
)

// fallbackPrefix marks auto-generated numbered avatars handed out once
// the palette is exhausted.
const fallbackPrefix = "👤"

// Avatars is the fixed palette participants draw from.
var Avatars = []string{
	// Animals
	"🦊", "🐼", "🦁", "🐯", "🐻", "🐨", "🐸", "🐵", "🦄", "🐲",
	"🦋", "🐝", "🦅", "🦉", "🐧", "🐦", "🦆", "🦢", "🦩", "🐢",
	"🐙", "🦑", "🦐", "🦀", "🐡", "🐬", "🐳", "🦈", "🐊", "🦎",
	"🐍", "🦕", "🦖", "🐘", "🦏", "🦛", "🐪", "🦒", "🦘", "🦬",
	"🐃", "🐂", "🐄", "🐎", "🦌", "🐑", "🐐", "🦙", "🐖", "🐗",
	// Fantasy & fun
	"🤖", "👾", "👽", "👻", "💀", "🎃", "🦸", "🦹", "🧙", "🧚",
	"🧛", "🧜", "🧝", "🧞", "🧟", "🥷", "🦴", "🌟", "⭐", "🌙",
	"☀️", "🌈", "⚡", "🔥", "💧", "❄️", "🌊", "🌸", "🌺", "🌻",
	// Objects & symbols
	"🎯", "🎨", "🎭", "🎪", "🎢", "🚀", "🛸", "🎮", "🎲", "🎳",
	"🏆", "🥇", "🎖️", "🏅", "⚽", "🏀", "🏈", "⚾", "🎾", "🏐",
	"🎱", "🏓", "🏸", "🥊", "🎿", "🛹", "🛼", "🎸", "🎺", "🎷",
	"🥁", "🎹", "🎻", "🪗", "🎤", "🎧", "📻", "📺", "💎", "💰",
}

// randomAvatar picks an unused palette entry uniformly at random, or a
// numbered placeholder once every entry is taken.
func randomAvatar(used map[string]bool) string {
	available := make([]string, 0, len(Avatars))
	for _, a := range Avatars {
		if !used[a] {
			available = append(available, a)
		}
	}
	if len(available) == 0 {
		return fmt.Sprintf("%s%d", fallbackPrefix, len(used)+1)
	}
	return available[rand.Intn(len(available))]
}

// validAvatar reports whether the avatar is a palette entry or a
// numbered fallback.
func validAvatar(avatar string) bool {
	if strings.HasPrefix(avatar, fallbackPrefix) {
		return true
	}
	for _, a := range Avatars {
		if a == avatar {
			return true
		}
	}
	return false
}
