package userdb

// Hash reproduces the historical userid hash bit-exactly: seed 0x4AFB,
// then for each non-zero byte of userid (up to UseridLen, processed in
// reverse order) v = (v<<2) XOR byte. Getting this wrong doesn't just
// change where a record lands — it means a rehash (Tidy) would scatter
// every existing record to a different slot than a peer process using
// the historical formula, so the shift-then-XOR order below is load
// bearing, not a style choice.
func Hash(userid string) uint32 {
	b := []byte(userid)
	if len(b) > UseridLen {
		b = b[:UseridLen]
	}
	v := uint32(0x4AFB)
	for i := len(b) - 1; i >= 0; i-- {
		c := b[i]
		if c == 0 {
			continue
		}
		v = (v << 2) ^ uint32(c)
	}
	return v
}
