package core

// Decimal formatting for error and trace text. The firmware build avoids fmt
// and strconv to stay small.

// utoa formats n in decimal.
func utoa(n uint32) string {
	var buf [10]byte
	pos := len(buf)
	for {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			return string(buf[pos:])
		}
	}
}

// itoa formats a signed value.
func itoa(n int) string {
	if n < 0 {
		return "-" + utoa(uint32(-n))
	}
	return utoa(uint32(n))
}
