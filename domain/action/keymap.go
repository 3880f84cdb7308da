package action

import "strings"

// letterVK maps lowercase letters to Windows virtual-key codes.
var letterVK = func() map[string]uint16 {
	m := make(map[string]uint16, 26)
	for c := 'a'; c <= 'z'; c++ {
		m[string(c)] = uint16(0x41 + (c - 'a'))
	}
	return m
}()

var namedVK = map[string]uint16{
	"space": 0x20,
	"enter": 0x0D,
	"tab":   0x09,
	"esc":   0x1B,
	"shift": 0x10,
	"ctrl":  0x11,
	"alt":   0x12,
}

// normalizeKey lowercases and trims a key token.
func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// VK converts a key token (e.g. "e", "F3", "space") into a Windows
// virtual-key code. Tokens outside the table fall back to the uppercase
// ASCII code of their first character; an empty token yields 0.
func VK(key string) uint16 {
	k := normalizeKey(key)
	if k == "" {
		return 0
	}
	if vk, ok := letterVK[k]; ok {
		return vk
	}
	if vk, ok := namedVK[k]; ok {
		return vk
	}
	if vk, ok := functionVK(k); ok {
		return vk
	}
	return uint16(strings.ToUpper(k)[0])
}

// functionVK recognises f1..f12.
func functionVK(k string) (uint16, bool) {
	if len(k) < 2 || len(k) > 3 || k[0] != 'f' {
		return 0, false
	}
	n := 0
	for _, c := range k[1:] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	if n < 1 || n > 12 {
		return 0, false
	}
	return uint16(0x70 + n - 1), true // VK_F1=0x70
}
