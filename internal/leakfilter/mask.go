package leakfilter

// MaskDigits masks the digit stream of a phone-shaped span, preserving every
// non-digit separator verbatim. The first keepLead and last keepTrail digits
// stay visible; every digit between them becomes maskByte. Counting over the
// underlying digit stream (not byte positions) makes "+90 555 111 22 33" and
// "05551112233" mask consistently.
//
// A span too short to hide anything under the configured widths keeps only
// its first digit — short spans never pass through unmasked.
func MaskDigits(span string, keepLead, keepTrail int, maskByte byte) string {
	total := 0
	for i := 0; i < len(span); i++ {
		if span[i] >= '0' && span[i] <= '9' {
			total++
		}
	}
	if total == 0 {
		return span
	}
	if keepLead < 0 {
		keepLead = 0
	}
	if keepTrail < 0 {
		keepTrail = 0
	}
	if keepLead+keepTrail >= total {
		keepLead, keepTrail = 1, 0
	}

	out := []byte(span)
	seen := 0
	for i := 0; i < len(out); i++ {
		if out[i] < '0' || out[i] > '9' {
			continue
		}
		if seen >= keepLead && seen < total-keepTrail {
			out[i] = maskByte
		}
		seen++
	}
	return string(out)
}
